package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sessionguard/internal/app"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	var (
		relogin   bool
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and revoke its token",
		Long: `Clear the stored session and revoke the access token at the
authorization server. Revocation is best-effort: the local session is
cleared even when the server cannot be reached.

With --relogin a new interactive login starts right away.

Examples:
  sessionguard logout
  sessionguard logout --relogin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if relogin {
				return interactiveLogin(cmd, opts, noBrowser, func(ctx context.Context, a *app.App) error {
					return a.Coordinator.Logout(ctx)
				})
			}

			a, err := opts.openApp(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Coordinator.LogoutLocal(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	cmd.Flags().BoolVar(&relogin, "relogin", false, "start a new login after logging out")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "with --relogin, print the login URL instead of opening a browser")
	return cmd
}
