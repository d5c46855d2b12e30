package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphapilot/internal/config"
)

func newTestGateway(t *testing.T, handler http.Handler) *BinanceGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw := NewBinanceGateway(testMarket(), config.ExchangeConfig{
		Name:         "binance",
		Mode:         "live",
		Testnet:      true,
		RateLimitRPS: 100,
	}, zerolog.Nop())
	gw.fut.BaseURL = server.URL
	gw.spot.BaseURL = server.URL
	return gw
}

// kline builds the 12-element array the klines endpoint returns per bar.
func kline(openTime time.Time, closePrice string) []interface{} {
	return []interface{}{
		openTime.UnixMilli(),
		"50000.0", "50100.0", "49900.0", closePrice, "12.5",
		openTime.Add(3*time.Minute).UnixMilli() - 1,
		"625000.0", 100, "6.0", "300000.0", "0",
	}
}

// TestBinanceCandlesDropsOpenBar tests that the still-open bar the klines
// endpoint appends is never returned: one extra kline is requested and the
// final element discarded, so the newest candle is the latest completed one.
func TestBinanceCandlesDropsOpenBar(t *testing.T) {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	var gotLimit string
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/klines", r.URL.Path)
		gotLimit = r.URL.Query().Get("limit")
		// Three completed bars plus the in-progress one.
		resp := [][]interface{}{
			kline(base, "50100.0"),
			kline(base.Add(3*time.Minute), "50200.0"),
			kline(base.Add(6*time.Minute), "50300.0"),
			kline(base.Add(9*time.Minute), "50150.0"),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))

	candles, err := gw.Candles(context.Background(), "3m", 3)
	require.NoError(t, err)

	assert.Equal(t, "4", gotLimit)
	require.Len(t, candles, 3)
	assert.InDelta(t, 50300.0, candles[len(candles)-1].Close, 1e-9)
	assert.Equal(t, base, candles[0].OpenTime)
}

// TestBinanceCandlesEmptyResponse tests that an empty kline list stays empty
// rather than underflowing when the open bar is dropped.
func TestBinanceCandlesEmptyResponse(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]interface{}{}))
	}))

	candles, err := gw.Candles(context.Background(), "3m", 10)
	require.NoError(t, err)
	assert.Empty(t, candles)
}
