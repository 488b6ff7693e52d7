package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"sessionguard/internal/app"
	"sessionguard/internal/authclient"
	"sessionguard/internal/session"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in through the authorization server",
		Long: `Log in through the authorization server in your browser.

A local callback server receives the redirect that carries the token. Use
--no-browser on machines without a browser and open the printed URL
elsewhere on the same host.

Examples:
  sessionguard login
  sessionguard login --no-browser`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return interactiveLogin(cmd, opts, noBrowser, func(ctx context.Context, a *app.App) error {
				return a.Coordinator.Login(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the login URL instead of opening a browser")
	return cmd
}

// interactiveLogin runs start, which must navigate to the authorization
// endpoint, and completes the session from the redirect.
func interactiveLogin(cmd *cobra.Command, opts *rootOptions, noBrowser bool, start func(context.Context, *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), authclient.CallbackTimeout)
	defer cancel()
	out := cmd.OutOrStdout()

	server := authclient.NewCallbackServer(opts.cfg.CallbackPort)
	redirect, err := server.Start(ctx)
	if err != nil {
		return err
	}
	defer server.Stop()
	if opts.cfg.RedirectURL != "" {
		redirect = opts.cfg.RedirectURL
	}

	navigator := authclient.BrowserNavigator(out)
	if noBrowser {
		navigator = authclient.PrintNavigator(out)
	}

	a, err := opts.openApp(ctx, app.Options{RedirectURL: redirect, Navigator: navigator})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := start(ctx, a); err != nil {
		return err
	}

	stop := opts.startSpinner(cmd.ErrOrStderr(), " Waiting for login in browser...")
	callback, err := server.WaitForCallback(ctx)
	stop()
	if err != nil {
		return &session.AuthError{Reason: session.ErrNotAuthenticated, Cause: err}
	}

	loc, err := a.Coordinator.HandleCallback(ctx, callback)
	if err != nil {
		return err
	}

	if set, ok := a.Coordinator.Tokens(); ok {
		fmt.Fprintf(out, "%s Logged in, token expires %s\n", text.FgGreen.Sprint("✓"), formatExpiry(set.ExpiresAt))
	}
	if loc != nil && loc.RouteName == requestRoute {
		fmt.Fprintf(out, "Resume with: sessionguard request %s %s\n", loc.Query["method"], loc.Params["path"])
	}
	return nil
}

// formatExpiry renders t with its distance from now.
func formatExpiry(t time.Time) string {
	remaining := time.Until(t).Round(time.Second)
	if remaining <= 0 {
		return fmt.Sprintf("%s (expired %s ago)", t.Local().Format(time.RFC3339), (-remaining).String())
	}
	return fmt.Sprintf("%s (in %s)", t.Local().Format(time.RFC3339), remaining.String())
}
