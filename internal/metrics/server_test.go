package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeExchangeError tests the bounded error categories
func TestNormalizeExchangeError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{errors.New("context deadline exceeded"), ExchangeErrorTimeout},
		{errors.New("429 Too Many Requests"), ExchangeErrorRateLimit},
		{errors.New("signature for this request is not valid"), ExchangeErrorAuth},
		{errors.New("connection refused"), ExchangeErrorNetwork},
		{errors.New("invalid quantity"), ExchangeErrorInvalidReq},
		{errors.New("502 Bad Gateway"), ExchangeErrorServerError},
		{errors.New("something else entirely"), ExchangeErrorOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeExchangeError(tt.err))
	}
}

// newStatusMux rebuilds the server's mux shape for handler tests
// without binding a port
func newStatusMux(status StatusFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if status != nil {
		s := &Server{status: status}
		mux.HandleFunc("/status", s.handleStatus)
	}
	return mux
}

// TestHealthzEndpoint tests liveness
func TestHealthzEndpoint(t *testing.T) {
	srv := httptest.NewServer(newStatusMux(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestStatusEndpoint tests the scheduler status JSON surface
func TestStatusEndpoint(t *testing.T) {
	status := func() interface{} {
		return map[string]interface{}{"running": true, "cycle_interval": "1m0s"}
	}
	srv := httptest.NewServer(newStatusMux(status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "1m0s", body["cycle_interval"])
}

// TestStatusEndpointRejectsPost tests the method guard
func TestStatusEndpointRejectsPost(t *testing.T) {
	status := func() interface{} { return map[string]bool{"running": false} }
	srv := httptest.NewServer(newStatusMux(status))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
