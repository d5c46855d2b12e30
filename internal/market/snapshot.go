// Package market resolves the per-cycle market snapshot: price, pair
// constraints, funding signal, and recent candles for the configured
// trading pair. Unreliable sources are tried in a fixed priority order;
// the first structurally valid result wins.
package market

import (
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/alphapilot/internal/exchange"
)

// Snapshot is the shared market view for one engine cycle. All strategy
// decisions in a cycle read the same snapshot. Tick/lot constraints are
// carried per sub-account: spot and perp list different filters for the
// same pair.
type Snapshot struct {
	Symbol      string            `json:"symbol"`
	Price       float64           `json:"price"`
	PriceSource string            `json:"price_source"`
	SpotMeta    exchange.PairMeta `json:"spot_meta"`
	PerpMeta    exchange.PairMeta `json:"perp_meta"`
	FundingRate float64           `json:"funding_rate"`
	Candles     []exchange.Candle `json:"candles"`
	CapturedAt  time.Time         `json:"captured_at"`
}

// Meta returns the pair constraints for a sub-account
func (s *Snapshot) Meta(sub exchange.SubAccount) exchange.PairMeta {
	if sub == exchange.SubAccountSpot {
		return s.SpotMeta
	}
	return s.PerpMeta
}

// Validate checks structural soundness. A snapshot with a non-finite or
// non-positive price must never reach a strategy.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	if s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return fmt.Errorf("invalid price %v for %s", s.Price, s.Symbol)
	}
	for _, meta := range []exchange.PairMeta{s.SpotMeta, s.PerpMeta} {
		if meta.TickSize <= 0 || meta.LotSize <= 0 {
			return fmt.Errorf("invalid pair constraints for %s: tick=%v lot=%v", s.Symbol, meta.TickSize, meta.LotSize)
		}
	}
	return nil
}

// Age returns how long ago the snapshot was captured
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Fresh reports whether the snapshot is still within the given TTL
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return s.Age(now) <= ttl
}
