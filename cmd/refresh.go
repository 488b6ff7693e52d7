package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sessionguard/internal/app"
	"sessionguard/internal/session"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the token silently",
		Long: `Renew the access token without user interaction.

The renewal must finish within the configured renewal deadline; otherwise
the session is logged out, exactly as a request waiting for renewal would.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			renewal := a.Coordinator.Refresh()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.RenewalDeadline)
			defer cancel()
			stop := opts.startSpinner(cmd.ErrOrStderr(), " Renewing token...")
			err = renewal.Wait(ctx)
			stop()

			switch {
			case errors.Is(err, context.DeadlineExceeded):
				if expireErr := a.Coordinator.Expire(cmd.Context()); expireErr != nil {
					return expireErr
				}
				return &session.AuthError{Reason: session.ErrRenewalTimeout}
			case err != nil:
				return &session.AuthError{Reason: session.ErrRenewalFailed, Cause: err}
			}

			set, _ := a.Coordinator.Tokens()
			fmt.Fprintf(cmd.OutOrStdout(), "Token renewed, expires %s\n", formatExpiry(set.ExpiresAt))
			return nil
		},
	}
}
