package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/market"
	"github.com/ajitpratap0/alphapilot/internal/store"
)

// Aggressive is the momentum executor. It compares the latest completed
// candle close with one a few candles prior and opens a directional
// perp position when the percentage move exceeds the threshold.
type Aggressive struct {
	cfg config.StrategiesConfig
	log zerolog.Logger
}

// NewAggressive creates the momentum executor
func NewAggressive(cfg config.StrategiesConfig) *Aggressive {
	return &Aggressive{
		cfg: cfg,
		log: log.With().Str("strategy", string(store.ProfileAggressive)).Logger(),
	}
}

// Profile returns the risk profile this executor serves
func (a *Aggressive) Profile() store.Profile {
	return store.ProfileAggressive
}

// Momentum returns the percentage change between the latest candle close
// and the close span candles earlier. The second return is false when
// the history is too short to measure.
func Momentum(candles []exchange.Candle, span int) (float64, bool) {
	if len(candles) < 2 {
		return 0, false
	}
	if span < 1 {
		span = 1
	}
	latest := len(candles) - 1
	prior := latest - span
	if prior < 0 {
		prior = 0
	}
	p0 := candles[prior].Close
	p1 := candles[latest].Close
	if p0 <= 0 {
		return 0, false
	}
	return (p1 - p0) / p0 * 100, true
}

// Decide opens a long on positive momentum, a short on negative, and
// stands down inside the threshold band or while a position is open
func (a *Aggressive) Decide(agent store.Agent, snap *market.Snapshot, accounts AccountSet, cooldowns CooldownView, now time.Time) Decision {
	perp := accounts.Perp
	if perp == nil {
		return NoAction(a.Profile(), "perp account state unavailable")
	}
	if len(perp.Positions) > 0 {
		return NoAction(a.Profile(), "position already open")
	}

	momentum, ok := Momentum(snap.Candles, a.cfg.Aggressive.MomentumSpan)
	if !ok {
		return NoAction(a.Profile(), "insufficient candle history for momentum")
	}

	threshold := a.cfg.Aggressive.MomentumThreshold
	var side exchange.OrderSide
	switch {
	case momentum > threshold:
		side = exchange.OrderSideBuy
	case momentum < -threshold:
		side = exchange.OrderSideSell
	default:
		return NoAction(a.Profile(), fmt.Sprintf("momentum %.3f%% within threshold ±%.3f%%", momentum, threshold))
	}

	meta := snap.Meta(exchange.SubAccountPerp)
	size := leveragedEntrySize(perp.AvailableBalance(), a.cfg.BalanceFraction, agent.Strategy.Leverage, snap.Price, meta.LotSize)
	if size <= 0 {
		return NoAction(a.Profile(), "available margin too small for any lot")
	}

	order := OrderIntent{
		SubAccount:  exchange.SubAccountPerp,
		Side:        side,
		Price:       marketablePrice(snap.Price, meta.TickSize, side),
		Size:        size,
		ReduceOnly:  false,
		TimeInForce: exchange.TimeInForceIOC,
		Reason:      fmt.Sprintf("momentum %.3f%% beyond threshold %.3f%%", momentum, threshold),
	}
	if order.Notional() < a.cfg.MinNotional {
		return NoAction(a.Profile(), fmt.Sprintf("notional %.2f below minimum %.2f", order.Notional(), a.cfg.MinNotional))
	}

	a.log.Info().
		Str("agent_id", agent.ID).
		Float64("momentum_pct", momentum).
		Str("side", string(side)).
		Float64("size", order.Size).
		Float64("price", order.Price).
		Msg("Proposing momentum entry")

	return Decision{Profile: a.Profile(), Orders: []OrderIntent{order}, Reason: order.Reason}
}
