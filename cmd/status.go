package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"sessionguard/internal/app"
	"sessionguard/internal/authclient"
	"sessionguard/internal/session"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session status",
		Long: `Show the state of the stored session, when its token expires and who
it belongs to.

With --check the command exits with code 2 when no valid session exists,
which is convenient in scripts.

Examples:
  sessionguard status
  sessionguard status --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			state := a.Coordinator.State()
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{text.FgHiCyan.Sprint("PROPERTY"), text.FgHiCyan.Sprint("VALUE")})
			t.AppendRow(table.Row{"State", colorState(state)})

			if set, ok := a.Coordinator.Tokens(); ok {
				t.AppendRow(table.Row{"Expires", set.ExpiresAt.Local().Format(time.RFC3339)})
				t.AppendRow(table.Row{"Remaining", remaining(set.ExpiresAt)})
				appendIdentity(t, set.IDToken)
			}
			t.AppendRow(table.Row{"Storage", a.Config.Storage.Type})
			if a.Config.APIBaseURL != "" {
				t.AppendRow(table.Row{"API", a.Config.APIBaseURL})
			}
			t.Render()

			if check && state != session.StateAuthenticated {
				return &session.AuthError{Reason: session.ErrNotAuthenticated}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "exit with code 2 when not authenticated")
	return cmd
}

func colorState(state session.State) string {
	switch state {
	case session.StateAuthenticated:
		return text.FgGreen.Sprint(state.String())
	case session.StateRefreshing:
		return text.FgYellow.Sprint(state.String())
	default:
		return text.FgRed.Sprint(state.String())
	}
}

func remaining(expiresAt time.Time) string {
	d := time.Until(expiresAt).Round(time.Second)
	if d <= 0 {
		return text.FgRed.Sprint("expired")
	}
	return d.String()
}

func appendIdentity(t table.Writer, idToken string) {
	if idToken == "" {
		return
	}
	id, err := authclient.ParseIdentity(idToken)
	if err != nil {
		t.AppendRow(table.Row{"Identity", text.FgYellow.Sprintf("unreadable: %v", err)})
		return
	}
	if id.Subject != "" {
		t.AppendRow(table.Row{"Subject", id.Subject})
	}
	if id.Name != "" {
		t.AppendRow(table.Row{"Name", id.Name})
	}
	if id.Email != "" {
		t.AppendRow(table.Row{"Email", id.Email})
	}
	if id.Issuer != "" {
		t.AppendRow(table.Row{"Issuer", id.Issuer})
	}
}
