package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"sessionguard/internal/authclient"
	"sessionguard/internal/clock"
	"sessionguard/internal/config"
	"sessionguard/internal/guard"
	"sessionguard/internal/location"
	"sessionguard/internal/session"
	"sessionguard/internal/storage"
	"sessionguard/pkg/logging"
)

// Options tune how an App is assembled.
type Options struct {
	// RedirectURL overrides the configured redirect URL, typically with
	// the address of a local callback server.
	RedirectURL string

	// Navigator overrides how the login URL is opened.
	Navigator authclient.Navigator

	// HTTPClient is used for discovery and revocation, and its transport
	// as the base of the guarded client.
	HTTPClient *http.Client

	// Clock defaults to the real clock.
	Clock clock.Clock
}

// App is an assembled session.
type App struct {
	Config      config.Config
	Store       storage.Store
	Authorizer  *authclient.ImplicitClient
	Coordinator *session.Coordinator
	Locations   *location.Memory
	Guard       *guard.Transport
	HTTPClient  *http.Client

	cancel context.CancelFunc
}

// New builds an App from cfg. The caller must Close it.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: authclient.DefaultHTTPTimeout}
	}

	clientOpts := authclient.Options{
		ClientID:             cfg.ClientID,
		Endpoints:            authclient.Endpoints{Authorization: cfg.AuthorizationURL, Revocation: cfg.RevokeURL},
		RedirectURL:          cfg.RedirectURL,
		Scopes:               cfg.Scopes,
		SilentRefreshTimeout: cfg.SilentRefreshTimeout,
		HTTPClient:           httpClient,
		Navigator:            opts.Navigator,
	}
	if opts.RedirectURL != "" {
		clientOpts.RedirectURL = opts.RedirectURL
	}
	if cfg.Issuer != "" {
		if err := discover(ctx, cfg, httpClient, &clientOpts); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(ctx, cfg.Storage.ToStorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}
	if clientOpts.Jar, err = authclient.NewPersistentJar(ctx, store); err != nil {
		_ = store.Close()
		return nil, err
	}
	authorizer, err := authclient.NewImplicitClient(clientOpts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	tokens, err := session.NewTokenStore(ctx, store, opts.Clock)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Store:      store,
		Authorizer: authorizer,
		Locations:  location.NewMemory(store),
	}
	a.Coordinator = session.NewCoordinator(session.Config{
		Tokens:     tokens,
		Authorizer: authorizer,
		Clock:      opts.Clock,
		Locations:  a.Locations,
	})
	a.Guard = guard.New(a.Coordinator, guard.Options{
		Base:            httpClient.Transport,
		Clock:           opts.Clock,
		RenewalDeadline: cfg.RenewalDeadline,
	})
	a.HTTPClient = &http.Client{Transport: a.Guard}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if cfg.Storage.Watch {
		a.watch(watchCtx)
	}

	logging.Debug("App", "Session ready (state=%s, storage=%s)", a.Coordinator.State(), cfg.Storage.Type)
	return a, nil
}

func discover(ctx context.Context, cfg config.Config, httpClient *http.Client, opts *authclient.Options) error {
	d := authclient.NewDiscovery(cfg.Issuer, httpClient)
	endpoints, err := d.Endpoints(ctx)
	if err != nil {
		return err
	}
	if opts.Endpoints.Authorization == "" {
		opts.Endpoints.Authorization = endpoints.Authorization
	}
	if opts.Endpoints.Revocation == "" {
		opts.Endpoints.Revocation = endpoints.Revocation
	}
	if cfg.VerifyIDToken {
		if opts.Verifier, err = d.Verifier(ctx, cfg.ClientID); err != nil {
			return err
		}
	}
	return nil
}

// watch reloads the session when another process updates the file store.
func (a *App) watch(ctx context.Context) {
	fs, ok := a.Store.(*storage.FileStore)
	if !ok {
		logging.Warn("App", "storage.watch is only supported by the file backend")
		return
	}
	err := fs.Watch(ctx, func() {
		if err := a.Coordinator.ReloadTokens(ctx); err != nil {
			logging.Warn("App", "Failed to reload session: %v", err)
		}
	})
	if err != nil {
		logging.Warn("App", "Failed to watch session file: %v", err)
	}
}

// Close stops watching and releases the storage backend.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Store == nil {
		return nil
	}
	if err := a.Store.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		return err
	}
	return nil
}
