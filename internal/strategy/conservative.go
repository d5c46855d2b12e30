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

// Conservative is the funding-rate arbitrage executor. It shorts the
// perpetual only while the funding rate pays short holders above a
// configured threshold, and never adds to an existing position.
type Conservative struct {
	cfg config.StrategiesConfig
	log zerolog.Logger
}

// NewConservative creates the funding-rate arbitrage executor
func NewConservative(cfg config.StrategiesConfig) *Conservative {
	return &Conservative{
		cfg: cfg,
		log: log.With().Str("strategy", string(store.ProfileConservative)).Logger(),
	}
}

// Profile returns the risk profile this executor serves
func (c *Conservative) Profile() store.Profile {
	return store.ProfileConservative
}

// Decide proposes a short entry when funding pays shorts, there is no
// open position, and available margin supports at least the minimum
// notional
func (c *Conservative) Decide(agent store.Agent, snap *market.Snapshot, accounts AccountSet, cooldowns CooldownView, now time.Time) Decision {
	perp := accounts.Perp
	if perp == nil {
		return NoAction(c.Profile(), "perp account state unavailable")
	}
	if len(perp.Positions) > 0 {
		return NoAction(c.Profile(), "position already open")
	}

	threshold := c.cfg.Conservative.FundingThreshold
	if snap.FundingRate <= threshold {
		return NoAction(c.Profile(), fmt.Sprintf("funding rate %.6f at or below threshold %.6f", snap.FundingRate, threshold))
	}

	meta := snap.Meta(exchange.SubAccountPerp)
	size := leveragedEntrySize(perp.AvailableBalance(), c.cfg.BalanceFraction, agent.Strategy.Leverage, snap.Price, meta.LotSize)
	if size <= 0 {
		return NoAction(c.Profile(), "available margin too small for any lot")
	}

	order := OrderIntent{
		SubAccount:  exchange.SubAccountPerp,
		Side:        exchange.OrderSideSell,
		Price:       marketablePrice(snap.Price, meta.TickSize, exchange.OrderSideSell),
		Size:        size,
		ReduceOnly:  false,
		TimeInForce: exchange.TimeInForceIOC,
		Reason:      fmt.Sprintf("funding rate %.6f above threshold %.6f", snap.FundingRate, threshold),
	}
	if order.Notional() < c.cfg.MinNotional {
		return NoAction(c.Profile(), fmt.Sprintf("notional %.2f below minimum %.2f", order.Notional(), c.cfg.MinNotional))
	}

	c.log.Info().
		Str("agent_id", agent.ID).
		Float64("funding_rate", snap.FundingRate).
		Float64("size", order.Size).
		Float64("price", order.Price).
		Msg("Proposing funding-arb short entry")

	return Decision{Profile: c.Profile(), Orders: []OrderIntent{order}, Reason: order.Reason}
}
