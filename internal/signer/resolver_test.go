package signer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
)

// newVaultStub serves a KV v2 read response and counts requests
func newVaultStub(t *testing.T, payload string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if payload == "" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
}

func newTestResolver(t *testing.T, addr string, ttl time.Duration) *VaultResolver {
	t.Helper()
	r, err := NewVaultResolver(config.VaultConfig{
		Address:   addr,
		Token:     "unit-test-token",
		MountPath: "secret",
		CacheTTL:  ttl,
	})
	require.NoError(t, err)
	return r
}

// TestResolveReadsKVv2Secret tests credential extraction from a KV v2 payload
func TestResolveReadsKVv2Secret(t *testing.T) {
	var hits atomic.Int64
	srv := newVaultStub(t, `{"data":{"data":{"api_key":"key-1","api_secret":"sec-1"},"metadata":{"version":1}}}`, &hits)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, time.Minute)

	creds, err := r.Resolve(context.Background(), "agents/agent-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", creds.APIKey)
	assert.Equal(t, "sec-1", creds.APISecret)
}

// TestResolveCachesWithinTTL tests that repeat reads hit the cache
func TestResolveCachesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	srv := newVaultStub(t, `{"data":{"data":{"api_key":"key-1","api_secret":"sec-1"}}}`, &hits)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, time.Minute)

	ctx := context.Background()
	_, err := r.Resolve(ctx, "agents/agent-1")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "agents/agent-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), hits.Load())

	r.Invalidate("agents/agent-1")
	_, err = r.Resolve(ctx, "agents/agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

// TestResolveMissingSecret tests a 404 from Vault
func TestResolveMissingSecret(t *testing.T) {
	var hits atomic.Int64
	srv := newVaultStub(t, "", &hits)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, time.Minute)

	_, err := r.Resolve(context.Background(), "agents/unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signing secret")
}

// TestResolveIncompleteSecret tests a secret without credential keys
func TestResolveIncompleteSecret(t *testing.T) {
	var hits atomic.Int64
	srv := newVaultStub(t, `{"data":{"data":{"note":"nothing useful"}}}`, &hits)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, time.Minute)

	_, err := r.Resolve(context.Background(), "agents/agent-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

// TestResolveEmptyPath tests the guard against agents without a secret path
func TestResolveEmptyPath(t *testing.T) {
	var hits atomic.Int64
	srv := newVaultStub(t, `{}`, &hits)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, time.Minute)

	_, err := r.Resolve(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, int64(0), hits.Load())
}

// TestStaticResolver tests the fixed-credential resolver used in paper mode
func TestStaticResolver(t *testing.T) {
	r := &StaticResolver{Creds: exchange.Credentials{APIKey: "paper", APISecret: "paper"}}

	creds, err := r.Resolve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "paper", creds.APIKey)
}
