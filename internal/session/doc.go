// Package session owns the authenticated session: the persisted token set,
// the state machine that drives login, logout and silent renewal, and the
// broadcast that tells waiting requests a renewal completed.
//
// # Components
//
//   - TokenStore: the current TokenSet, persisted through a storage.Store
//   - Coordinator: the only component that changes session state
//   - Broadcaster: observer lists for the logged_in and renewed events
//
// # Renewal
//
// At most one silent refresh is outstanding at any time. Callers that hit
// an authorization failure call Coordinator.AwaitRenewal, which starts a
// refresh only if none is in progress and registers a one-shot listener for
// the next renewed broadcast. A failed renewal does not broadcast; waiting
// callers fall through to their own deadline.
//
// # Usage
//
//	tokens, err := session.NewTokenStore(ctx, store, clk)
//	coord := session.NewCoordinator(session.Config{
//	    Tokens:     tokens,
//	    Authorizer: authClient,
//	    Clock:      clk,
//	})
//	renewal := coord.Refresh()
//	err = renewal.Wait(ctx)
package session
