package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"sessionguard/internal/clock"
	"sessionguard/internal/storage"
	"sessionguard/pkg/logging"
)

// TokenSet is the credential material of an authenticated session.
type TokenSet struct {
	// AccessToken is the bearer token presented to the API.
	AccessToken string

	// IDToken is the OIDC ID token. Empty means absent.
	IDToken string

	// ExpiresAt is when the access token stops being valid.
	ExpiresAt time.Time
}

// Valid reports whether the set holds a token that has not expired at now.
func (t TokenSet) Valid(now time.Time) bool {
	return t.AccessToken != "" && t.ExpiresAt.After(now)
}

// OAuth2Token converts the set for use with golang.org/x/oauth2.
func (t TokenSet) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// TokenStore holds the current TokenSet and persists it so that a restart
// does not force a fresh login while the token is still valid.
//
// SECURITY: token values are never logged, only their expiry.
type TokenStore struct {
	mu      sync.RWMutex
	store   storage.Store
	clock   clock.Clock
	current *TokenSet
}

// NewTokenStore creates a TokenStore over store and loads any persisted set.
func NewTokenStore(ctx context.Context, store storage.Store, clk clock.Clock) (*TokenStore, error) {
	ts := &TokenStore{
		store: store,
		clock: clock.OrReal(clk),
	}
	if err := ts.Reload(ctx); err != nil {
		return nil, err
	}
	return ts, nil
}

// Get returns a copy of the current set.
func (s *TokenStore) Get() (TokenSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return TokenSet{}, false
	}
	return *s.current, true
}

// Set atomically replaces the current set and persists it. A set whose
// expiry is not after the current time is rejected with ErrTokenExpired.
func (s *TokenStore) Set(ctx context.Context, set TokenSet) error {
	if set.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrTokenExpired)
	}
	if !set.ExpiresAt.After(s.clock.Now()) {
		return ErrTokenExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetMany(ctx, map[string]string{
		storage.KeyAccessToken:    set.AccessToken,
		storage.KeyIDToken:        set.IDToken,
		storage.KeyTokenExpiresAt: strconv.FormatInt(set.ExpiresAt.UnixMilli(), 10),
	}); err != nil {
		logging.Audit("token_store_failed", "error", err.Error())
		return fmt.Errorf("failed to persist token: %w", err)
	}

	stored := set
	s.current = &stored
	logging.Audit("token_stored",
		"expiry", set.ExpiresAt.Format(time.RFC3339),
		"has_id_token", set.IDToken != "",
	)
	return nil
}

// Clear removes the current set from memory and storage.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if err := s.store.Delete(ctx, storage.KeyAccessToken, storage.KeyIDToken, storage.KeyTokenExpiresAt); err != nil {
		logging.Audit("token_clear_failed", "error", err.Error())
		return fmt.Errorf("failed to clear token: %w", err)
	}
	logging.Audit("token_cleared")
	return nil
}

// IsValid reports whether a set is present and unexpired according to now.
func (s *TokenStore) IsValid(now func() time.Time) bool {
	set, ok := s.Get()
	return ok && set.Valid(now())
}

// Reload replaces the in-memory set with what storage holds. Incomplete or
// malformed persisted values are treated as absent.
func (s *TokenStore) Reload(ctx context.Context) error {
	access, ok, err := s.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	var loaded *TokenSet
	if ok && access != "" {
		loaded, err = s.loadRest(ctx, access)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

func (s *TokenStore) loadRest(ctx context.Context, access string) (*TokenSet, error) {
	rawExpiry, ok, err := s.store.Get(ctx, storage.KeyTokenExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load token expiry: %w", err)
	}
	if !ok {
		return nil, nil
	}
	ms, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		logging.Warn("TokenStore", "Ignoring stored token with malformed expiry")
		return nil, nil
	}
	idToken, _, err := s.store.Get(ctx, storage.KeyIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load id token: %w", err)
	}
	return &TokenSet{
		AccessToken: access,
		IDToken:     idToken,
		ExpiresAt:   time.UnixMilli(ms),
	}, nil
}
