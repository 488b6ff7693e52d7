package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"sessionguard/internal/authclient"
	"sessionguard/internal/clock"
	"sessionguard/internal/location"
	"sessionguard/pkg/logging"
)

// Authorizer is the authorization endpoint as seen by the Coordinator.
type Authorizer interface {
	// Login sends the user to the authorization endpoint. Completion
	// arrives later through CompleteCallback.
	Login(ctx context.Context) error

	// CompleteCallback parses the redirect that ends an interactive login.
	CompleteCallback(ctx context.Context, location *url.URL) (*authclient.TokenResponse, error)

	// SilentRefresh starts an out-of-band renewal and returns immediately.
	// The result is delivered to the callback registered with OnRenewal,
	// tagged with the same cycle.
	SilentRefresh(cycle uint64)

	// OnRenewal sets the single callback for SilentRefresh results.
	OnRenewal(func(cycle uint64, resp *authclient.TokenResponse, err error))

	// Revoke invalidates accessToken on the server.
	Revoke(ctx context.Context, accessToken string) error
}

// Config wires a Coordinator.
type Config struct {
	// Tokens is the session's token store. Required.
	Tokens *TokenStore

	// Authorizer talks to the authorization endpoint. Required.
	Authorizer Authorizer

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Locations, if set, is consulted after login to return the user to
	// the interrupted navigation target.
	Locations *location.Memory
}

// Renewal is the outcome of one silent refresh. It resolves exactly once.
type Renewal struct {
	cycle uint64
	done  chan struct{}
	once  sync.Once
	err   error
}

func newRenewal(cycle uint64) *Renewal {
	return &Renewal{cycle: cycle, done: make(chan struct{})}
}

// Cycle identifies the silent refresh behind this renewal. Cycles are
// numbered from 1 in the order they were started.
func (r *Renewal) Cycle() uint64 {
	return r.cycle
}

// Done is closed when the renewal resolved.
func (r *Renewal) Done() <-chan struct{} {
	return r.done
}

// Err returns the renewal error. Only meaningful after Done is closed.
func (r *Renewal) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the renewal resolves or ctx is done.
func (r *Renewal) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Renewal) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Coordinator is the session state machine. It is the only component that
// changes the session state or the token store.
type Coordinator struct {
	mu        sync.Mutex
	tokens    *TokenStore
	auth      Authorizer
	clock     clock.Clock
	locations *location.Memory
	events    *Broadcaster

	state     State
	renewal   *Renewal // non-nil while a silent refresh is outstanding
	refreshes uint64
}

// NewCoordinator creates a Coordinator and registers its renewal callback
// with the Authorizer. A persisted, still-valid token set makes the
// session start authenticated.
func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		tokens:    cfg.Tokens,
		auth:      cfg.Authorizer,
		clock:     clock.OrReal(cfg.Clock),
		locations: cfg.Locations,
		events:    NewBroadcaster(),
		state:     StateUnauthenticated,
	}
	if c.tokens.IsValid(c.clock.Now) {
		c.state = StateAuthenticated
	}
	c.auth.OnRenewal(c.handleRenewal)
	return c
}

// State returns the current state. An authenticated session whose token
// expired reports StateUnauthenticated.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.renewal != nil {
		return StateRefreshing
	}
	if c.state == StateAuthenticated && !c.tokens.IsValid(c.clock.Now) {
		return StateUnauthenticated
	}
	return c.state
}

// Authenticated reports whether callers may use the stored token now.
// It stays true during a refresh while the stored token is unexpired.
func (c *Coordinator) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateUnauthenticated && c.tokens.IsValid(c.clock.Now)
}

// RefreshInProgress reports whether a silent refresh is outstanding.
func (c *Coordinator) RefreshInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renewal != nil
}

// RefreshCount returns how many silent refreshes were started.
func (c *Coordinator) RefreshCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// AccessToken returns the stored access token, which may be stale.
func (c *Coordinator) AccessToken() (string, bool) {
	set, ok := c.tokens.Get()
	if !ok {
		return "", false
	}
	return set.AccessToken, true
}

// Tokens returns the current token set.
func (c *Coordinator) Tokens() (TokenSet, bool) {
	return c.tokens.Get()
}

// Subscribe registers fn for every emission of event.
func (c *Coordinator) Subscribe(event Event, fn func()) (dispose func()) {
	return c.events.Subscribe(event, fn)
}

// Listeners returns the number of listeners waiting on event.
func (c *Coordinator) Listeners(event Event) int {
	return c.events.Len(event)
}

// Refresh starts a silent refresh unless one is already outstanding and
// returns the outstanding Renewal.
func (c *Coordinator) Refresh() *Renewal {
	c.mu.Lock()
	r, started := c.startRefreshLocked()
	c.mu.Unlock()

	if started {
		c.auth.SilentRefresh(r.cycle)
	}
	return r
}

// AwaitRenewal registers fn as a one-shot listener for the next renewed
// broadcast and makes sure a silent refresh is outstanding. Both happen
// atomically, so the listener cannot miss the renewal it waits for.
// fn is called synchronously from the goroutine completing the renewal
// and must not block.
func (c *Coordinator) AwaitRenewal(fn func()) (dispose func()) {
	c.mu.Lock()
	dispose = c.events.Once(EventRenewed, fn)
	r, started := c.startRefreshLocked()
	c.mu.Unlock()

	if started {
		c.auth.SilentRefresh(r.cycle)
	}
	return dispose
}

func (c *Coordinator) startRefreshLocked() (*Renewal, bool) {
	if c.renewal != nil {
		return c.renewal, false
	}
	c.refreshes++
	c.renewal = newRenewal(c.refreshes)
	c.state = StateRefreshing
	logging.Debug("Coordinator", "Starting silent refresh #%d", c.refreshes)
	return c.renewal, true
}

// handleRenewal receives SilentRefresh results from the Authorizer. Only
// the result of the outstanding cycle counts; results of abandoned cycles
// are discarded.
func (c *Coordinator) handleRenewal(cycle uint64, resp *authclient.TokenResponse, err error) {
	c.mu.Lock()
	r := c.renewal
	if r == nil || r.cycle != cycle {
		c.mu.Unlock()
		logging.Debug("Coordinator", "Discarding result of abandoned silent refresh #%d", cycle)
		return
	}
	c.renewal = nil

	if err == nil {
		var set TokenSet
		set, err = c.tokenSet(resp)
		if err == nil {
			err = c.tokens.Set(context.Background(), set)
		}
	}
	if err != nil {
		c.state = StateUnauthenticated
		c.mu.Unlock()

		logging.Warn("Coordinator", "Silent refresh failed: %v", err)
		r.resolve(fmt.Errorf("%w: %w", ErrRenewalFailed, err))
		return
	}

	c.state = StateAuthenticated
	listeners := append(c.events.take(EventRenewed), c.events.take(EventLoggedIn)...)
	c.mu.Unlock()

	logging.Info("Coordinator", "Session renewed, notifying %d listeners", len(listeners))
	r.resolve(nil)
	for _, fn := range listeners {
		fn()
	}
}

// Expire is the forced logout of the renewal deadline: the token store is
// cleared, the session becomes unauthenticated and an outstanding renewal
// is abandoned so its late result is discarded.
func (c *Coordinator) Expire(ctx context.Context) error {
	c.mu.Lock()
	r := c.renewal
	c.renewal = nil
	c.state = StateUnauthenticated
	err := c.tokens.Clear(ctx)
	c.mu.Unlock()

	if r != nil {
		logging.Warn("Coordinator", "Renewal deadline elapsed, abandoning silent refresh")
		r.resolve(ErrRenewalTimeout)
	}
	return err
}

// Login sends the user to the authorization endpoint.
func (c *Coordinator) Login(ctx context.Context) error {
	logging.Info("Coordinator", "Starting interactive login")
	return c.auth.Login(ctx)
}

// HandleCallback completes an interactive login from the redirect
// location. On success the session is authenticated, logged_in and
// renewed are broadcast, and the remembered navigation target (if any) is
// returned and forgotten.
func (c *Coordinator) HandleCallback(ctx context.Context, callback *url.URL) (*location.Location, error) {
	resp, err := c.auth.CompleteCallback(ctx, callback)
	if err != nil {
		return nil, &AuthError{Reason: ErrNotAuthenticated, Cause: err}
	}
	set, err := c.tokenSet(resp)
	if err != nil {
		return nil, &AuthError{Reason: ErrNotAuthenticated, Cause: err}
	}

	c.mu.Lock()
	if err := c.tokens.Set(ctx, set); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.renewal == nil {
		c.state = StateAuthenticated
	}
	listeners := append(c.events.take(EventLoggedIn), c.events.take(EventRenewed)...)
	c.mu.Unlock()

	logging.Info("Coordinator", "Login completed, token expires at %s", set.ExpiresAt.Format(time.RFC3339))
	for _, fn := range listeners {
		fn()
	}

	if c.locations == nil {
		return nil, nil
	}
	loc, ok, err := c.locations.Recall(ctx)
	if err != nil || !ok {
		return nil, err
	}
	if err := c.locations.Forget(ctx); err != nil {
		logging.Warn("Coordinator", "Failed to forget location: %v", err)
	}
	return loc, nil
}

// LogoutLocal clears the session and revokes the token remotely. The
// revocation is best-effort: its failure is logged and the local session
// is cleared regardless.
func (c *Coordinator) LogoutLocal(ctx context.Context) error {
	c.mu.Lock()
	set, had := c.tokens.Get()
	r := c.renewal
	c.renewal = nil
	c.state = StateUnauthenticated
	clearErr := c.tokens.Clear(ctx)
	c.mu.Unlock()

	if r != nil {
		r.resolve(ErrRenewalAbandoned)
	}
	if had {
		if err := c.auth.Revoke(ctx, set.AccessToken); err != nil {
			logging.Warn("Coordinator", "Best-effort token revocation failed: %v", err)
		} else {
			logging.Audit("token_revoked")
		}
	}
	return clearErr
}

// Logout clears and revokes the session, then immediately starts a new
// interactive login.
func (c *Coordinator) Logout(ctx context.Context) error {
	if err := c.LogoutLocal(ctx); err != nil {
		return err
	}
	return c.Login(ctx)
}

// ReloadTokens re-reads the token store, picking up a login performed by
// another process. A valid reloaded token that differs from the one held
// before authenticates the session like a completed renewal: an
// outstanding silent refresh is resolved (its own late result is then
// discarded) and logged_in and renewed are broadcast.
func (c *Coordinator) ReloadTokens(ctx context.Context) error {
	c.mu.Lock()
	before, _ := c.tokens.Get()
	if err := c.tokens.Reload(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	after, _ := c.tokens.Get()

	if !c.tokens.IsValid(c.clock.Now) || after.AccessToken == before.AccessToken {
		c.mu.Unlock()
		return nil
	}

	r := c.renewal
	c.renewal = nil
	c.state = StateAuthenticated
	listeners := append(c.events.take(EventLoggedIn), c.events.take(EventRenewed)...)
	c.mu.Unlock()

	logging.Info("Coordinator", "Adopted session stored by another process, expires at %s",
		after.ExpiresAt.Format(time.RFC3339))
	if r != nil {
		r.resolve(nil)
	}
	for _, fn := range listeners {
		fn()
	}
	return nil
}

func (c *Coordinator) tokenSet(resp *authclient.TokenResponse) (TokenSet, error) {
	if resp == nil || resp.AccessToken == "" {
		return TokenSet{}, authclient.ErrNoToken
	}
	if resp.ExpiresIn <= 0 {
		return TokenSet{}, fmt.Errorf("%w: expires_in=%d", ErrTokenExpired, resp.ExpiresIn)
	}
	return TokenSet{
		AccessToken: resp.AccessToken,
		IDToken:     resp.IDToken,
		ExpiresAt:   c.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
