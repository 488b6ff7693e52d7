package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessionguard/internal/clock"
	"sessionguard/internal/session"
	"sessionguard/pkg/logging"
)

// DefaultRenewalDeadline is how long a rejected request waits for a
// renewal before the session is expired.
const DefaultRenewalDeadline = 2 * time.Second

// errRejectedAfterRenewal is the cause reported when the retried request
// is rejected again.
var errRejectedAfterRenewal = errors.New("request rejected again after token renewal")

// Session is the part of the session coordinator the guard depends on.
type Session interface {
	// Tokens returns the current, possibly stale, token set.
	Tokens() (session.TokenSet, bool)

	// AwaitRenewal registers fn for the next renewal and makes sure one is
	// in progress.
	AwaitRenewal(fn func()) (dispose func())

	// Expire forces the session out after a missed renewal deadline.
	Expire(ctx context.Context) error
}

// Options configures a Transport.
type Options struct {
	// Base performs the actual round trips. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper

	// Clock drives the renewal deadline. Defaults to the real clock.
	Clock clock.Clock

	// RenewalDeadline defaults to DefaultRenewalDeadline.
	RenewalDeadline time.Duration
}

// PendingRequest is a request parked until the next renewal.
type PendingRequest struct {
	ID         uuid.UUID
	Request    *http.Request
	EnqueuedAt time.Time
}

// Transport is the request guard.
type Transport struct {
	session  Session
	base     http.RoundTripper
	clock    clock.Clock
	deadline time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*PendingRequest
}

// New creates a Transport for sess.
func New(sess Session, opts Options) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	deadline := opts.RenewalDeadline
	if deadline <= 0 {
		deadline = DefaultRenewalDeadline
	}
	return &Transport{
		session:  sess,
		base:     base,
		clock:    clock.OrReal(opts.Clock),
		deadline: deadline,
		pending:  make(map[uuid.UUID]*PendingRequest),
	}
}

// NewClient returns an http.Client whose requests go through the guard.
func NewClient(sess Session, opts Options) *http.Client {
	return &http.Client{Transport: New(sess, opts)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	first := req.Body
	if req.GetBody == nil && getBody != nil {
		if first, err = getBody(); err != nil {
			return nil, err
		}
	}

	resp, err := t.send(req, first, getBody)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	if err := t.waitForRenewal(req); err != nil {
		return nil, err
	}

	var retryBody io.ReadCloser
	if getBody != nil {
		if retryBody, err = getBody(); err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
	}
	resp, err = t.send(req, retryBody, getBody)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		logging.Warn("Guard", "%s %s rejected after renewal", req.Method, req.URL.Redacted())
		return nil, &session.AuthError{Reason: session.ErrNotAuthenticated, Cause: errRejectedAfterRenewal}
	}
	return resp, nil
}

func (t *Transport) send(req *http.Request, body io.ReadCloser, getBody func() (io.ReadCloser, error)) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Body = body
	out.GetBody = getBody
	if set, ok := t.session.Tokens(); ok {
		set.OAuth2Token().SetAuthHeader(out)
	}
	return t.base.RoundTrip(out)
}

// waitForRenewal parks req until the next renewal, the deadline or the
// cancellation of the request context, whichever comes first.
func (t *Transport) waitForRenewal(req *http.Request) error {
	p := t.enqueue(req)
	defer t.dequeue(p.ID)

	renewed := make(chan struct{})
	var once sync.Once
	dispose := t.session.AwaitRenewal(func() {
		once.Do(func() { close(renewed) })
	})

	timer := t.clock.NewTimer(t.deadline)
	defer timer.Stop()

	select {
	case <-renewed:
		logging.Debug("Guard", "Resubmitting request %s after renewal", p.ID)
		return nil
	case <-timer.C():
		dispose()
		logging.Warn("Guard", "No renewal within %s, expiring session", t.deadline)
		if err := t.session.Expire(context.WithoutCancel(req.Context())); err != nil {
			logging.Error("Guard", err, "Failed to clear expired session")
		}
		return &session.AuthError{Reason: session.ErrRenewalTimeout}
	case <-req.Context().Done():
		dispose()
		return req.Context().Err()
	}
}

func (t *Transport) enqueue(req *http.Request) *PendingRequest {
	p := &PendingRequest{
		ID:         uuid.New(),
		Request:    req,
		EnqueuedAt: t.clock.Now(),
	}
	t.mu.Lock()
	t.pending[p.ID] = p
	t.mu.Unlock()
	return p
}

func (t *Transport) dequeue(id uuid.UUID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Pending returns the number of requests waiting for a renewal.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// PendingRequests returns the waiting requests, oldest first.
func (t *Transport) PendingRequests() []PendingRequest {
	t.mu.Lock()
	out := make([]PendingRequest, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, *p)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// replayableBody returns a function producing fresh copies of the request
// body, buffering it when the request cannot rewind on its own.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
