package guard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionguard/internal/clock"
	"sessionguard/internal/session"
	"sessionguard/internal/session/sessiontest"
	"sessionguard/internal/storage"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// apiServer accepts only requests carrying the current token.
type apiServer struct {
	*httptest.Server
	mu     sync.Mutex
	token  string
	status int
	seen   []string
	bodies []string
	hits   atomic.Int32
}

func newAPIServer(t *testing.T, token string) *apiServer {
	t.Helper()
	api := &apiServer{token: token}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		body, _ := io.ReadAll(r.Body)

		api.mu.Lock()
		auth := r.Header.Get("Authorization")
		api.seen = append(api.seen, auth)
		api.bodies = append(api.bodies, string(body))
		accepted := auth == "Bearer "+api.token
		status := api.status
		api.mu.Unlock()

		switch {
		case status != 0:
			w.WriteHeader(status)
		case !accepted:
			w.WriteHeader(http.StatusUnauthorized)
		default:
			_, _ = io.WriteString(w, "ok "+r.URL.Path)
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *apiServer) respondWith(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

func (a *apiServer) headers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seen...)
}

type fixture struct {
	api       *apiServer
	auth      *sessiontest.Authorizer
	clock     *clock.Fake
	store     storage.Store
	tokens    *session.TokenStore
	coord     *session.Coordinator
	transport *Transport
}

func newFixture(t *testing.T, stored string, accepted string) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		api:   newAPIServer(t, accepted),
		auth:  sessiontest.NewAuthorizer(),
		clock: clock.NewFake(epoch),
		store: storage.NewMemoryStore(),
	}
	tokens, err := session.NewTokenStore(ctx, f.store, f.clock)
	require.NoError(t, err)
	f.tokens = tokens
	if stored != "" {
		require.NoError(t, tokens.Set(ctx, session.TokenSet{AccessToken: stored, ExpiresAt: epoch.Add(time.Hour)}))
	}
	f.coord = session.NewCoordinator(session.Config{Tokens: tokens, Authorizer: f.auth, Clock: f.clock})
	f.transport = New(f.coord, Options{Clock: f.clock})
	return f
}

type result struct {
	resp *http.Response
	body string
	err  error
}

func (f *fixture) do(ctx context.Context, method, path string, body io.Reader) result {
	req, err := http.NewRequestWithContext(ctx, method, f.api.URL+path, body)
	if err != nil {
		return result{err: err}
	}
	resp, err := f.transport.RoundTrip(req)
	if err != nil {
		return result{err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return result{resp: resp, body: string(data)}
}

func (f *fixture) goDo(ctx context.Context, path string) <-chan result {
	ch := make(chan result, 1)
	go func() { ch <- f.do(ctx, http.MethodGet, path, nil) }()
	return ch
}

// waitParked waits until n requests armed their renewal deadline.
func (f *fixture) waitParked(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.clock.Timers() == n && f.transport.Pending() == n
	}, 5*time.Second, time.Millisecond)
}

func receive(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
		return result{}
	}
}

func TestTransport_ValidTokenPassesThrough(t *testing.T) {
	f := newFixture(t, "A1", "A1")

	r := f.do(context.Background(), http.MethodGet, "/orders", nil)
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.resp.StatusCode)
	assert.Equal(t, "ok /orders", r.body)
	assert.Equal(t, []string{"Bearer A1"}, f.api.headers())
	assert.Equal(t, 0, f.auth.Refreshes())
}

func TestTransport_ConcurrentRejectionsShareOneRenewal(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ctx := context.Background()

	results := []<-chan result{f.goDo(ctx, "/a"), f.goDo(ctx, "/b"), f.goDo(ctx, "/c")}
	f.waitParked(t, 3)
	assert.Equal(t, 1, f.auth.Refreshes())
	assert.Len(t, f.transport.PendingRequests(), 3)

	f.auth.Succeed("A2", 3600)

	for _, ch := range results {
		r := receive(t, ch)
		require.NoError(t, r.err)
		assert.Equal(t, http.StatusOK, r.resp.StatusCode)
	}
	assert.Equal(t, 1, f.auth.Refreshes())
	assert.Equal(t, int32(6), f.api.hits.Load())
	assert.Equal(t, 0, f.transport.Pending())

	headers := f.api.headers()
	assert.ElementsMatch(t, []string{"Bearer A1", "Bearer A1", "Bearer A1", "Bearer A2", "Bearer A2", "Bearer A2"}, headers)
	assert.Equal(t, session.StateAuthenticated, f.coord.State())
}

func TestTransport_RenewalDeadlineExpiresSession(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ch := f.goDo(context.Background(), "/orders")
	f.waitParked(t, 1)

	f.clock.Advance(DefaultRenewalDeadline)

	r := receive(t, ch)
	assert.ErrorIs(t, r.err, session.ErrNotAuthenticated)
	assert.ErrorIs(t, r.err, session.ErrRenewalTimeout)
	var authErr *session.AuthError
	require.ErrorAs(t, r.err, &authErr)

	assert.Equal(t, session.StateUnauthenticated, f.coord.State())
	_, ok := f.coord.AccessToken()
	assert.False(t, ok)
	assert.Equal(t, int32(1), f.api.hits.Load(), "request must not be resubmitted")
	assert.Equal(t, 0, f.coord.Listeners(session.EventRenewed))

	// A result arriving after the deadline is ignored.
	f.auth.Succeed("A2", 3600)
	assert.Equal(t, session.StateUnauthenticated, f.coord.State())
}

func TestTransport_RenewalDeadlineRejectsEveryParkedRequest(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ctx := context.Background()
	results := []<-chan result{f.goDo(ctx, "/a"), f.goDo(ctx, "/b")}
	f.waitParked(t, 2)
	assert.Equal(t, 1, f.auth.Refreshes())

	f.clock.Advance(DefaultRenewalDeadline)

	for _, ch := range results {
		r := receive(t, ch)
		assert.ErrorIs(t, r.err, session.ErrNotAuthenticated)
		assert.ErrorIs(t, r.err, session.ErrRenewalTimeout)
	}
	assert.False(t, f.tokens.IsValid(f.clock.Now))
	assert.False(t, f.coord.RefreshInProgress())
	assert.Equal(t, 0, f.transport.Pending())
	assert.Equal(t, 0, f.coord.Listeners(session.EventRenewed))
	assert.Equal(t, 0, f.clock.Timers())
	assert.Equal(t, int32(2), f.api.hits.Load())
}

func TestTransport_ExternalLoginReleasesParkedRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A1", "A2")
	ch := f.goDo(ctx, "/orders")
	f.waitParked(t, 1)

	f.auth.Complete(nil, errors.New("login_required"))

	// Another process logs in and writes its token to the shared store.
	require.NoError(t, f.store.SetMany(ctx, map[string]string{
		storage.KeyAccessToken:    "A2",
		storage.KeyTokenExpiresAt: strconv.FormatInt(epoch.Add(time.Hour).UnixMilli(), 10),
	}))
	require.NoError(t, f.coord.ReloadTokens(ctx))

	r := receive(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, f.api.headers())
	assert.Equal(t, 0, f.clock.Timers())

	f.clock.Advance(DefaultRenewalDeadline)
	assert.Equal(t, session.StateAuthenticated, f.coord.State())
	token, ok, err := f.store.Get(ctx, storage.KeyAccessToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A2", token)
}

func TestTransport_DeadlineNotReachedKeepsWaiting(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ch := f.goDo(context.Background(), "/orders")
	f.waitParked(t, 1)

	f.clock.Advance(DefaultRenewalDeadline - time.Millisecond)
	select {
	case <-ch:
		t.Fatal("request completed before the deadline")
	case <-time.After(20 * time.Millisecond):
	}

	f.auth.Succeed("A2", 3600)
	r := receive(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.resp.StatusCode)
}

func TestTransport_FailedRenewalFallsThroughToDeadline(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ch := f.goDo(context.Background(), "/orders")
	f.waitParked(t, 1)

	f.auth.Complete(nil, errors.New("login_required"))
	select {
	case <-ch:
		t.Fatal("failed renewal must not release the request")
	case <-time.After(20 * time.Millisecond):
	}

	f.clock.Advance(DefaultRenewalDeadline)
	r := receive(t, ch)
	assert.ErrorIs(t, r.err, session.ErrRenewalTimeout)
}

func TestTransport_SecondRejectionIsNotRetried(t *testing.T) {
	f := newFixture(t, "A1", "never")
	ch := f.goDo(context.Background(), "/orders")
	f.waitParked(t, 1)

	f.auth.Succeed("A2", 3600)

	r := receive(t, ch)
	assert.ErrorIs(t, r.err, session.ErrNotAuthenticated)
	assert.NotErrorIs(t, r.err, session.ErrRenewalTimeout)
	assert.Equal(t, int32(2), f.api.hits.Load())
	assert.Equal(t, 1, f.auth.Refreshes())
}

func TestTransport_NonAuthFailuresPassThrough(t *testing.T) {
	f := newFixture(t, "A1", "A1")
	f.api.respondWith(http.StatusInternalServerError)

	r := f.do(context.Background(), http.MethodGet, "/orders", nil)
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusInternalServerError, r.resp.StatusCode)
	assert.Equal(t, 0, f.auth.Refreshes())

	f.api.respondWith(http.StatusForbidden)
	r = f.do(context.Background(), http.MethodGet, "/orders", nil)
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusForbidden, r.resp.StatusCode)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransport_TransportErrorPassesThrough(t *testing.T) {
	f := newFixture(t, "A1", "A1")
	netErr := errors.New("connection refused")
	f.transport = New(f.coord, Options{
		Clock: f.clock,
		Base:  roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, netErr }),
	})

	r := f.do(context.Background(), http.MethodGet, "/orders", nil)
	assert.ErrorIs(t, r.err, netErr)
	assert.Equal(t, 0, f.auth.Refreshes())
}

func TestTransport_ContextCancelReleasesWaiter(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ctx, cancel := context.WithCancel(context.Background())
	ch := f.goDo(ctx, "/orders")
	f.waitParked(t, 1)

	cancel()

	r := receive(t, ch)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, 0, f.transport.Pending())
	assert.Equal(t, 0, f.coord.Listeners(session.EventRenewed))
	assert.Equal(t, 0, f.clock.Timers())
}

func TestTransport_RetryReplaysBody(t *testing.T) {
	f := newFixture(t, "A1", "A2")
	ch := make(chan result, 1)
	go func() {
		body := io.NopCloser(strings.NewReader(`{"name":"widget"}`))
		ch <- f.do(context.Background(), http.MethodPost, "/products", body)
	}()
	f.waitParked(t, 1)

	f.auth.Succeed("A2", 3600)

	r := receive(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.resp.StatusCode)

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.Equal(t, []string{`{"name":"widget"}`, `{"name":"widget"}`}, f.api.bodies)
}

func TestTransport_DoesNotMutateCallerRequest(t *testing.T) {
	f := newFixture(t, "A1", "A1")
	req, err := http.NewRequest(http.MethodGet, f.api.URL+"/orders", nil)
	require.NoError(t, err)

	resp, err := f.transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNewClient(t *testing.T) {
	f := newFixture(t, "A1", "A1")
	client := NewClient(f.coord, Options{Clock: f.clock})

	resp, err := client.Get(f.api.URL + "/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
