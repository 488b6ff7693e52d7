package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"sessionguard/internal/storage"
	"sessionguard/pkg/logging"
)

// JarStore is the part of storage.Store a PersistentJar needs.
type JarStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type storedCookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (c storedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// PersistentJar is an http.CookieJar whose cookies survive the process.
// Silent refresh depends on the authorization server's session cookie, so
// a CLI that is started once per command needs the cookie from the last
// interactive exchange.
//
// SECURITY: the cookies authenticate the user at the authorization
// server. They are kept in the same store as the tokens, and their values
// are never logged.
type PersistentJar struct {
	jar   *cookiejar.Jar
	store JarStore
	now   func() time.Time

	mu      sync.Mutex
	cookies map[string]storedCookie
}

// NewPersistentJar creates a jar and loads the cookies persisted in store.
// Expired cookies are dropped on load.
func NewPersistentJar(ctx context.Context, store JarStore) (*PersistentJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j := &PersistentJar{
		jar:     jar,
		store:   store,
		now:     time.Now,
		cookies: make(map[string]storedCookie),
	}

	raw, ok, err := store.Get(ctx, storage.KeyCookies)
	if err != nil {
		return nil, fmt.Errorf("failed to load cookies: %w", err)
	}
	if !ok || raw == "" {
		return j, nil
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		logging.Warn("AuthClient", "Ignoring unreadable cookie store: %v", err)
		return j, nil
	}
	now := j.now()
	for _, c := range stored {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		j.jar.SetCookies(u, []*http.Cookie{c.cookie()})
		j.cookies[cookieKey(u, c.Domain, c.Path, c.Name)] = c
	}
	logging.Debug("AuthClient", "Loaded %d persisted cookies", len(j.cookies))
	return j, nil
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// SetCookies implements http.CookieJar and persists the change. A failed
// write is logged and the in-memory jar is updated regardless.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
	for _, c := range cookies {
		key := cookieKey(u, c.Domain, c.Path, c.Name)
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
			delete(j.cookies, key)
			continue
		}
		j.cookies[key] = storedCookie{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	snapshot := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		snapshot = append(snapshot, c)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		logging.Warn("AuthClient", "Failed to encode cookies: %v", err)
		return
	}
	if err := j.store.Set(context.Background(), storage.KeyCookies, string(data)); err != nil {
		logging.Warn("AuthClient", "Failed to persist cookies: %v", err)
	}
}

func cookieKey(u *url.URL, domain, path, name string) string {
	if domain == "" {
		domain = u.Hostname()
	}
	return domain + ";" + path + ";" + name
}
