// Package location remembers the navigation target that was interrupted by
// an unauthenticated session, so the user can be returned there after login.
package location

import (
	"context"
	"encoding/json"
	"fmt"

	"sessionguard/internal/storage"
)

// CallbackRoute is the route that completes an interactive login. It is
// never remembered.
const CallbackRoute = "oauth-callback"

// Location is a named navigation target with its parameters.
type Location struct {
	RouteName string            `json:"name"`
	Params    map[string]string `json:"params,omitempty"`
	Query     map[string]string `json:"query,omitempty"`
}

// Memory persists the last interrupted Location.
type Memory struct {
	store storage.Store
}

// NewMemory creates a Memory backed by store.
func NewMemory(store storage.Store) *Memory {
	return &Memory{store: store}
}

// Remember stores loc as the last navigation target.
func (m *Memory) Remember(ctx context.Context, loc Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}
	return m.store.Set(ctx, storage.KeyLastLocation, string(data))
}

// Recall returns the last remembered Location. A stored value that cannot
// be decoded is treated as absent.
func (m *Memory) Recall(ctx context.Context) (*Location, bool, error) {
	raw, ok, err := m.store.Get(ctx, storage.KeyLastLocation)
	if err != nil || !ok {
		return nil, false, err
	}

	var loc Location
	if err := json.Unmarshal([]byte(raw), &loc); err != nil || loc.RouteName == "" {
		return nil, false, nil
	}
	return &loc, true, nil
}

// Forget removes the remembered Location.
func (m *Memory) Forget(ctx context.Context) error {
	return m.store.Delete(ctx, storage.KeyLastLocation)
}

// Guard records a navigation to `to` and reports whether it may proceed.
// Navigation to the callback route always proceeds and is not recorded;
// any other named target is remembered, and proceeds only if
// authenticated is true.
func (m *Memory) Guard(ctx context.Context, to Location, authenticated bool) (bool, error) {
	if to.RouteName == CallbackRoute {
		return true, nil
	}
	if to.RouteName != "" {
		if err := m.Remember(ctx, to); err != nil {
			return false, err
		}
	}
	return authenticated, nil
}
