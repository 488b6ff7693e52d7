// Package sessiontest provides test doubles for the session package.
package sessiontest

import (
	"context"
	"net/url"
	"sync"

	"sessionguard/internal/authclient"
)

// Authorizer is a controllable session.Authorizer. Silent refreshes stay
// pending until the test calls Complete or CompleteCycle, unless Respond
// is set, in which case the result is delivered synchronously from
// SilentRefresh.
type Authorizer struct {
	mu       sync.Mutex
	callback func(uint64, *authclient.TokenResponse, error)
	cycles   []uint64
	logins   int
	revoked  []string

	// Respond, if set, answers every SilentRefresh immediately.
	Respond func() (*authclient.TokenResponse, error)

	// CallbackResponse and CallbackErr are returned by CompleteCallback.
	CallbackResponse *authclient.TokenResponse
	CallbackErr      error

	// RevokeErr is returned by Revoke.
	RevokeErr error
}

// NewAuthorizer creates an Authorizer with no canned responses.
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Login counts the call and succeeds.
func (a *Authorizer) Login(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins++
	return nil
}

// CompleteCallback returns CallbackResponse and CallbackErr.
func (a *Authorizer) CompleteCallback(ctx context.Context, location *url.URL) (*authclient.TokenResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.CallbackResponse, a.CallbackErr
}

// SilentRefresh records cycle as started. With Respond set, the answer is
// delivered before SilentRefresh returns.
func (a *Authorizer) SilentRefresh(cycle uint64) {
	a.mu.Lock()
	a.cycles = append(a.cycles, cycle)
	respond := a.Respond
	a.mu.Unlock()

	if respond != nil {
		resp, err := respond()
		a.CompleteCycle(cycle, resp, err)
	}
}

// OnRenewal registers the callback that receives refresh results.
func (a *Authorizer) OnRenewal(fn func(uint64, *authclient.TokenResponse, error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = fn
}

// Revoke records accessToken and returns RevokeErr.
func (a *Authorizer) Revoke(ctx context.Context, accessToken string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, accessToken)
	return a.RevokeErr
}

// Complete delivers a result for the most recently started cycle, or for
// cycle 0 when none was started.
func (a *Authorizer) Complete(resp *authclient.TokenResponse, err error) {
	a.CompleteCycle(a.LastCycle(), resp, err)
}

// CompleteCycle delivers a result for a specific cycle, which lets tests
// answer a refresh that was already abandoned.
func (a *Authorizer) CompleteCycle(cycle uint64, resp *authclient.TokenResponse, err error) {
	a.mu.Lock()
	fn := a.callback
	a.mu.Unlock()
	if fn != nil {
		fn(cycle, resp, err)
	}
}

// Succeed delivers a successful renewal of accessToken valid for expiresIn
// seconds to the most recent cycle.
func (a *Authorizer) Succeed(accessToken string, expiresIn int) {
	a.Complete(&authclient.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}, nil)
}

// Refreshes returns how many times SilentRefresh was called.
func (a *Authorizer) Refreshes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cycles)
}

// LastCycle returns the cycle of the latest SilentRefresh, or 0.
func (a *Authorizer) LastCycle() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.cycles) == 0 {
		return 0
	}
	return a.cycles[len(a.cycles)-1]
}

// Logins returns how many times Login was called.
func (a *Authorizer) Logins() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

// Revoked returns the tokens passed to Revoke.
func (a *Authorizer) Revoked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.revoked...)
}
