package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscoveryServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
			"revocation_endpoint":    server.URL + "/revoke",
			"jwks_uri":               server.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDiscovery_Endpoints(t *testing.T) {
	var hits int32
	server := newDiscoveryServer(t, &hits)
	d := NewDiscovery(server.URL+"/", server.Client())

	endpoints, err := d.Endpoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/authorize", endpoints.Authorization)
	assert.Equal(t, server.URL+"/revoke", endpoints.Revocation)

	verifier, err := d.Verifier(context.Background(), "admin-ui")
	require.NoError(t, err)
	assert.NotNil(t, verifier)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDiscovery_ConcurrentCallersShareFetch(t *testing.T) {
	var hits int32
	server := newDiscoveryServer(t, &hits)
	d := NewDiscovery(server.URL, server.Client())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Provider(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDiscovery_Failure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewDiscovery(server.URL, server.Client()).Endpoints(context.Background())
	assert.Error(t, err)
}
