package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"sessionguard/internal/app"
	"sessionguard/internal/authclient"
	"sessionguard/internal/config"
	"sessionguard/internal/session"
	"sessionguard/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the session is not authenticated and
	// a login is needed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization server rejected the login.
	ExitCodeAuthFailed = 3
)

// rootOptions holds the global flags and the configuration loaded from them.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	quiet      bool

	cfg config.Config
}

// openApp assembles a session from the loaded configuration.
func (o *rootOptions) openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.New(ctx, o.cfg, opts)
}

// startSpinner shows progress on w until the returned stop is called.
func (o *rootOptions) startSpinner(w io.Writer, suffix string) (stop func()) {
	if o.quiet {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sessionguard",
		Short: "Keep an authenticated API session alive",
		Long: `sessionguard logs in to an OAuth2 authorization server with the implicit
grant, keeps the bearer token in persistent storage, and sends API requests
that transparently survive token expiry: a request rejected with 401 waits
for a single silent renewal and is retried once with the fresh token.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "configuration directory (default is $HOME/.config/sessionguard)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newRefreshCmd(opts))
	cmd.AddCommand(newRequestCmd(opts))
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.Init(level, cmd.ErrOrStderr(), logging.Format(cfg.LogFormat))
	o.cfg = cfg
	return nil
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sessionguard version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var callbackErr *authclient.CallbackError
	if errors.As(err, &callbackErr) || errors.Is(err, authclient.ErrStateMismatch) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, session.ErrNotAuthenticated) {
		return ExitCodeAuthRequired
	}
	return ExitCodeError
}
