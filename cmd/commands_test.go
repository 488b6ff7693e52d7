package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionguard/internal/location"
	"sessionguard/internal/session"
	"sessionguard/internal/storage"
)

func TestStatusCommand_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "unauthenticated")
	assert.Contains(t, out, "sqlite")

	_, err = env.run(t, "status", "--check")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestStatusCommand_ShowsIdentity(t *testing.T) {
	env := newTestEnv(t, "")
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	env.login(t, "A1", idToken)

	out, err := env.run(t, "status", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated")
	assert.Contains(t, out, "user@example.com")
	assert.NotContains(t, out, "A1")
}

func TestRequestCommand(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
			"body":   string(body),
			"trace":  r.Header.Get("X-Trace"),
		})
	}))
	defer api.Close()

	env := newTestEnv(t, "api_base_url: "+api.URL+"\n")
	env.login(t, "A1", "")

	out, err := env.run(t, "request", "post", "/orders", "--data", `{"sku":"A-1"}`, "-H", "X-Trace: t1", "--remember")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "POST", got["method"])
	assert.Equal(t, "/orders", got["path"])
	assert.Equal(t, `{"sku":"A-1"}`, got["body"])
	assert.Equal(t, "t1", got["trace"])

	raw, ok := env.get(t, storage.KeyLastLocation)
	require.True(t, ok)
	var loc location.Location
	require.NoError(t, json.Unmarshal([]byte(raw), &loc))
	assert.Equal(t, "/orders", loc.Params["path"])
	assert.Equal(t, "POST", loc.Query["method"])
}

func TestRequestCommand_HTTPErrorStatus(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer api.Close()

	env := newTestEnv(t, "api_base_url: "+api.URL+"\n")
	env.login(t, "A1", "")

	out, err := env.run(t, "request", "/nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, out, "missing")
}

func TestRequestCommand_RequiresBaseURL(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "request", "/orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_base_url")
}

func TestLogoutCommand(t *testing.T) {
	var revoked atomic.Value
	revoke := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		revoked.Store(r.PostForm.Get("token"))
	}))
	defer revoke.Close()

	env := newTestEnv(t, "revoke_url: "+revoke.URL+"\n")
	env.login(t, "A1", "")

	out, err := env.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.Equal(t, "A1", revoked.Load())

	_, ok := env.get(t, storage.KeyAccessToken)
	assert.False(t, ok)
}

func TestLogoutCommand_RevokeFailureStillClears(t *testing.T) {
	env := newTestEnv(t, "revoke_url: http://127.0.0.1:1/revoke\n")
	env.login(t, "A1", "")

	_, err := env.run(t, "logout")
	require.NoError(t, err)

	_, ok := env.get(t, storage.KeyAccessToken)
	assert.False(t, ok)
}
