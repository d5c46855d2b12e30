package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/market"
	"github.com/ajitpratap0/alphapilot/internal/store"
)

// stubCooldowns is a CooldownView with fixed answers per action kind
type stubCooldowns struct {
	throttleBuy  bool
	throttleSell bool
}

func (s stubCooldowns) ShouldThrottle(agentID string, kind ActionKind, now time.Time) bool {
	if kind == ActionBuy {
		return s.throttleBuy
	}
	return s.throttleSell
}

func testStrategiesConfig() config.StrategiesConfig {
	return config.StrategiesConfig{
		MinNotional:     10,
		BalanceFraction: 0.9,
		Conservative:    config.ConservativeConfig{FundingThreshold: 0.0001},
		Aggressive:      config.AggressiveConfig{MomentumThreshold: 0.5, MomentumSpan: 3},
		SpotDCA:         config.SpotDCAConfig{TakeProfitPct: 0.05, BuyNotional: 10},
	}
}

func testSnapshot(price float64) *market.Snapshot {
	return &market.Snapshot{
		Symbol:     "BTCUSDT",
		Price:      price,
		SpotMeta:   exchange.PairMeta{TickSize: 0.01, LotSize: 0.00001},
		PerpMeta:   exchange.PairMeta{TickSize: 0.1, LotSize: 0.001},
		CapturedAt: time.Now(),
	}
}

func testAgent(profile store.Profile, leverage float64) store.Agent {
	return store.Agent{
		ID:            "agent-1",
		WalletAddress: "0xabc",
		Strategy:      store.StrategyConfig{Profile: profile, Leverage: leverage},
		IsActive:      true,
	}
}

func perpState(available float64, positions ...exchange.Position) AccountSet {
	return AccountSet{
		Perp: &exchange.AccountState{
			SubAccount:   exchange.SubAccountPerp,
			QuoteAsset:   "USDT",
			TotalBalance: available,
			Positions:    positions,
		},
	}
}

func spotState(available float64, positions ...exchange.Position) AccountSet {
	return AccountSet{
		Spot: &exchange.AccountState{
			SubAccount:   exchange.SubAccountSpot,
			QuoteAsset:   "USDT",
			TotalBalance: available,
			Positions:    positions,
		},
	}
}

// TestForProfileSelectsExecutor tests the closed profile set
func TestForProfileSelectsExecutor(t *testing.T) {
	cfg := testStrategiesConfig()
	for _, profile := range []store.Profile{store.ProfileConservative, store.ProfileAggressive, store.ProfileSpotDCA} {
		exec, err := ForProfile(profile, cfg)
		require.NoError(t, err)
		assert.Equal(t, profile, exec.Profile())
	}

	_, err := ForProfile("yolo", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown risk profile")
}

// TestConservativeShortsOnHighFunding tests the funding-arb entry
func TestConservativeShortsOnHighFunding(t *testing.T) {
	exec := NewConservative(testStrategiesConfig())
	snap := testSnapshot(50000)
	snap.FundingRate = 0.0005

	dec := exec.Decide(testAgent(store.ProfileConservative, 3), snap, perpState(1000), stubCooldowns{}, time.Now())
	require.Len(t, dec.Orders, 1)

	order := dec.Orders[0]
	assert.Equal(t, exchange.SubAccountPerp, order.SubAccount)
	assert.Equal(t, exchange.OrderSideSell, order.Side)
	assert.False(t, order.ReduceOnly)
	assert.Equal(t, exchange.TimeInForceIOC, order.TimeInForce)

	// 1000 × 0.9 × 3 = 2700 notional → 0.054 BTC at 50000
	assert.InDelta(t, 0.054, order.Size, 1e-9)
	assert.InDelta(t, 50000.0, order.Price, 1e-9)
}

// TestConservativeNeutralFundingNoTrade tests that the neutral fallback
// value is treated as below-threshold
func TestConservativeNeutralFundingNoTrade(t *testing.T) {
	exec := NewConservative(testStrategiesConfig())
	snap := testSnapshot(50000)
	snap.FundingRate = 0

	dec := exec.Decide(testAgent(store.ProfileConservative, 3), snap, perpState(1000), stubCooldowns{}, time.Now())
	assert.Empty(t, dec.Orders)
	assert.Contains(t, dec.Reason, "threshold")
}

// TestConservativeSkipsOpenPosition tests the single-position gate
func TestConservativeSkipsOpenPosition(t *testing.T) {
	exec := NewConservative(testStrategiesConfig())
	snap := testSnapshot(50000)
	snap.FundingRate = 0.0005

	accounts := perpState(1000, exchange.Position{
		Symbol: "BTCUSDT", Side: exchange.PositionSideShort, Size: 0.05, EntryNotional: 2500,
	})
	dec := exec.Decide(testAgent(store.ProfileConservative, 3), snap, accounts, stubCooldowns{}, time.Now())
	assert.Empty(t, dec.Orders)
	assert.Equal(t, "position already open", dec.Reason)
}

// TestConservativeMinNotionalGate tests that dust balances produce no order
func TestConservativeMinNotionalGate(t *testing.T) {
	exec := NewConservative(testStrategiesConfig())
	snap := testSnapshot(50000)
	snap.FundingRate = 0.0005

	// 3 × 0.9 × 1 = 2.7 notional, below the 10 minimum
	dec := exec.Decide(testAgent(store.ProfileConservative, 1), snap, perpState(3), stubCooldowns{}, time.Now())
	assert.Empty(t, dec.Orders)
}

func candlesFromCloses(closes ...float64) []exchange.Candle {
	out := make([]exchange.Candle, len(closes))
	base := time.Now().Add(-time.Duration(len(closes)) * 3 * time.Minute)
	for i, c := range closes {
		out[i] = exchange.Candle{OpenTime: base.Add(time.Duration(i) * 3 * time.Minute), Close: c}
	}
	return out
}

// TestMomentum tests the percentage-change computation
func TestMomentum(t *testing.T) {
	m, ok := Momentum(candlesFromCloses(100, 101, 102, 103), 3)
	require.True(t, ok)
	assert.InDelta(t, 3.0, m, 1e-9)

	// Short history clamps the span to the earliest candle
	m, ok = Momentum(candlesFromCloses(100, 102), 3)
	require.True(t, ok)
	assert.InDelta(t, 2.0, m, 1e-9)

	_, ok = Momentum(candlesFromCloses(100), 3)
	assert.False(t, ok)

	_, ok = Momentum(nil, 3)
	assert.False(t, ok)
}

// TestAggressiveMomentumDirections tests long iff momentum > threshold,
// short iff momentum < -threshold, otherwise no-action
func TestAggressiveMomentumDirections(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		side   exchange.OrderSide
		trades bool
	}{
		{"positive momentum longs", []float64{50000, 50100, 50200, 50400}, exchange.OrderSideBuy, true},
		{"negative momentum shorts", []float64{50000, 49900, 49800, 49600}, exchange.OrderSideSell, true},
		{"flat no-action", []float64{50000, 50010, 49990, 50005}, "", false},
		{"exactly at threshold no-action", []float64{50000, 50100, 50200, 50250}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewAggressive(testStrategiesConfig())
			snap := testSnapshot(tt.closes[len(tt.closes)-1])
			snap.Candles = candlesFromCloses(tt.closes...)

			dec := exec.Decide(testAgent(store.ProfileAggressive, 5), snap, perpState(1000), stubCooldowns{}, time.Now())
			if !tt.trades {
				assert.Empty(t, dec.Orders)
				return
			}
			require.Len(t, dec.Orders, 1)
			assert.Equal(t, tt.side, dec.Orders[0].Side)
			assert.Equal(t, exchange.SubAccountPerp, dec.Orders[0].SubAccount)
			assert.False(t, dec.Orders[0].ReduceOnly)
		})
	}
}

// TestAggressiveNeedsCandleHistory tests the two-candle floor
func TestAggressiveNeedsCandleHistory(t *testing.T) {
	exec := NewAggressive(testStrategiesConfig())
	snap := testSnapshot(50000)
	snap.Candles = candlesFromCloses(50000)

	dec := exec.Decide(testAgent(store.ProfileAggressive, 5), snap, perpState(1000), stubCooldowns{}, time.Now())
	assert.Empty(t, dec.Orders)
	assert.Contains(t, dec.Reason, "insufficient candle history")
}

// TestSpotDCAAccumulation tests the fixed-notional buy scenario:
// 100 quote available, 10 minimum → buy 10 notional, ~90 left
func TestSpotDCAAccumulation(t *testing.T) {
	exec := NewSpotDCA(testStrategiesConfig())
	snap := testSnapshot(50000)

	dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(100), stubCooldowns{}, time.Now())
	require.Len(t, dec.Orders, 1)

	order := dec.Orders[0]
	assert.Equal(t, exchange.SubAccountSpot, order.SubAccount)
	assert.Equal(t, exchange.OrderSideBuy, order.Side)
	assert.InDelta(t, 10.0, order.Notional(), 0.6)
}

// TestSpotDCASpendsAllWhenRemainderWouldBeDust tests the dust rule
func TestSpotDCASpendsAllWhenRemainderWouldBeDust(t *testing.T) {
	exec := NewSpotDCA(testStrategiesConfig())
	snap := testSnapshot(100) // coarse price so lot rounding is visible

	// 15 available: a 10 buy would strand 5, below the 10 minimum
	dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(15), stubCooldowns{}, time.Now())
	require.Len(t, dec.Orders, 1)
	assert.InDelta(t, 15.0, dec.Orders[0].Notional(), 0.2)
}

// TestSpotDCABuyCooldownBlocks tests the cooldown gate
func TestSpotDCABuyCooldownBlocks(t *testing.T) {
	exec := NewSpotDCA(testStrategiesConfig())
	snap := testSnapshot(50000)

	dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(100), stubCooldowns{throttleBuy: true}, time.Now())
	assert.Empty(t, dec.Orders)
	assert.Contains(t, dec.Reason, "buy cooldown active")
}

// TestSpotDCATakeProfit tests sell iff C >= E*(1+P)
func TestSpotDCATakeProfit(t *testing.T) {
	holding := exchange.Position{
		Symbol: "BTCUSDT", Side: exchange.PositionSideLong, Size: 0.01, EntryNotional: 500, // entry 50000
	}
	tests := []struct {
		name  string
		price float64
		sells bool
	}{
		{"below target holds", 52000, false},
		{"just under target holds", 52499.9, false},
		{"at target sells", 52500, true},
		{"above target sells", 53000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewSpotDCA(testStrategiesConfig())
			snap := testSnapshot(tt.price)

			dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(0, holding), stubCooldowns{}, time.Now())
			if !tt.sells {
				for _, o := range dec.Orders {
					assert.NotEqual(t, exchange.OrderSideSell, o.Side)
				}
				return
			}
			require.NotEmpty(t, dec.Orders)
			sell := dec.Orders[0]
			assert.Equal(t, exchange.OrderSideSell, sell.Side)
			assert.Equal(t, exchange.SubAccountSpot, sell.SubAccount)
			assert.InDelta(t, holding.Size, sell.Size, 1e-9)
		})
	}
}

// TestSpotDCASellCooldownBlocksTakeProfit tests the sell-side gate
func TestSpotDCASellCooldownBlocksTakeProfit(t *testing.T) {
	exec := NewSpotDCA(testStrategiesConfig())
	snap := testSnapshot(60000)
	holding := exchange.Position{Symbol: "BTCUSDT", Side: exchange.PositionSideLong, Size: 0.01, EntryNotional: 500}

	dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(0, holding), stubCooldowns{throttleSell: true}, time.Now())
	assert.Empty(t, dec.Orders)
	assert.Contains(t, dec.Reason, "sell cooldown active")
}

// TestSpotDCABothChecksFireTogether tests a take-profit sell and an
// accumulation buy in the same cycle when quote balance is available
func TestSpotDCABothChecksFireTogether(t *testing.T) {
	exec := NewSpotDCA(testStrategiesConfig())
	snap := testSnapshot(60000)
	holding := exchange.Position{Symbol: "BTCUSDT", Side: exchange.PositionSideLong, Size: 0.01, EntryNotional: 500}

	dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(100, holding), stubCooldowns{}, time.Now())
	require.Len(t, dec.Orders, 2)
	assert.Equal(t, exchange.OrderSideSell, dec.Orders[0].Side)
	assert.Equal(t, exchange.OrderSideBuy, dec.Orders[1].Side)
}

// TestSpotDCATinyPositionHeld tests that a position below the minimum
// notional is held rather than sold
func TestSpotDCATinyPositionHeld(t *testing.T) {
	exec := NewSpotDCA(testStrategiesConfig())
	snap := testSnapshot(60000)
	dust := exchange.Position{Symbol: "BTCUSDT", Side: exchange.PositionSideLong, Size: 0.0001, EntryNotional: 5}

	dec := exec.Decide(testAgent(store.ProfileSpotDCA, 0), snap, spotState(0, dust), stubCooldowns{}, time.Now())
	assert.Empty(t, dec.Orders)
}
