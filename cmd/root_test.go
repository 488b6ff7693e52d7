package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionguard/internal/authclient"
	"sessionguard/internal/session"
	"sessionguard/internal/storage"
)

// testEnv is a config directory with a sqlite-backed session.
type testEnv struct {
	configDir string
	dbPath    string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{configDir: dir, dbPath: filepath.Join(dir, "session.db")}
	content := fmt.Sprintf(`client_id: admin-ui
authorization_url: https://auth.example.com/authorize
log_level: error
storage:
  type: sqlite
  path: %s
%s`, env.dbPath, extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return env
}

func (e *testEnv) store(t *testing.T, values map[string]string) {
	t.Helper()
	s, err := storage.NewSQLiteStore(context.Background(), e.dbPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SetMany(context.Background(), values))
}

func (e *testEnv) get(t *testing.T, key string) (string, bool) {
	t.Helper()
	s, err := storage.NewSQLiteStore(context.Background(), e.dbPath)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func (e *testEnv) login(t *testing.T, token, idToken string) {
	t.Helper()
	e.store(t, map[string]string{
		storage.KeyAccessToken:    token,
		storage.KeyIDToken:        idToken,
		storage.KeyTokenExpiresAt: strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10),
	})
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", e.configDir, "--quiet"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "sessionguard", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.True(t, root.SilenceUsage)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"version", "login", "logout", "status", "refresh", "request"}, names)
}

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), ExitCodeError},
		{"not authenticated", &session.AuthError{Reason: session.ErrNotAuthenticated}, ExitCodeAuthRequired},
		{"renewal timeout", fmt.Errorf("get: %w", &session.AuthError{Reason: session.ErrRenewalTimeout}), ExitCodeAuthRequired},
		{"login rejected", &session.AuthError{Reason: session.ErrNotAuthenticated, Cause: &authclient.CallbackError{Code: "access_denied"}}, ExitCodeAuthFailed},
		{"state mismatch", authclient.ErrStateMismatch, ExitCodeAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	root.Version = "1.2.3-test"
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "sessionguard version 1.2.3-test\n", out.String())
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage:\n  type: memory\n"), 0o600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"status", "--config", dir})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")
}
