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

// SpotDCA accumulates the base asset in fixed-notional spot buys and
// liquidates the whole position once price clears entry by the
// take-profit percentage. Take-profit and accumulation are independent
// checks; both can fire in the same cycle when a liquidation frees
// quote balance that was already available before the sale settled.
type SpotDCA struct {
	cfg config.StrategiesConfig
	log zerolog.Logger
}

// NewSpotDCA creates the accumulation executor
func NewSpotDCA(cfg config.StrategiesConfig) *SpotDCA {
	return &SpotDCA{
		cfg: cfg,
		log: log.With().Str("strategy", string(store.ProfileSpotDCA)).Logger(),
	}
}

// Profile returns the risk profile this executor serves
func (s *SpotDCA) Profile() store.Profile {
	return store.ProfileSpotDCA
}

// Decide runs the take-profit check, then the accumulation check
func (s *SpotDCA) Decide(agent store.Agent, snap *market.Snapshot, accounts AccountSet, cooldowns CooldownView, now time.Time) Decision {
	spot := accounts.Spot
	if spot == nil {
		return NoAction(s.Profile(), "spot account state unavailable")
	}

	var orders []OrderIntent
	var reasons []string

	if sell, reason := s.takeProfit(agent, snap, spot, cooldowns, now); sell != nil {
		orders = append(orders, *sell)
		reasons = append(reasons, sell.Reason)
	} else if reason != "" {
		reasons = append(reasons, reason)
	}

	if buy, reason := s.accumulate(agent, snap, spot, cooldowns, now); buy != nil {
		orders = append(orders, *buy)
		reasons = append(reasons, buy.Reason)
	} else if reason != "" {
		reasons = append(reasons, reason)
	}

	reason := "no action"
	if len(reasons) > 0 {
		reason = reasons[0]
		for _, r := range reasons[1:] {
			reason += "; " + r
		}
	}
	return Decision{Profile: s.Profile(), Orders: orders, Reason: reason}
}

// takeProfit sells the entire available position when price has cleared
// average entry by the take-profit percentage
func (s *SpotDCA) takeProfit(agent store.Agent, snap *market.Snapshot, spot *exchange.AccountState, cooldowns CooldownView, now time.Time) (*OrderIntent, string) {
	pos := basePosition(spot)
	if pos == nil || pos.Size <= 0 {
		return nil, ""
	}

	entry := pos.EntryPrice()
	if entry <= 0 {
		return nil, "position entry price unknown, holding"
	}

	target := entry * (1 + s.cfg.SpotDCA.TakeProfitPct)
	if snap.Price < target {
		return nil, fmt.Sprintf("price %.2f below take-profit target %.2f", snap.Price, target)
	}

	meta := snap.Meta(exchange.SubAccountSpot)
	size := FloorToLot(pos.Size, meta.LotSize)
	price := marketablePrice(snap.Price, meta.TickSize, exchange.OrderSideSell)
	if size <= 0 || size*price < s.cfg.MinNotional {
		return nil, fmt.Sprintf("position notional %.2f below minimum %.2f, holding", size*price, s.cfg.MinNotional)
	}

	if cooldowns.ShouldThrottle(agent.ID, ActionSell, now) {
		return nil, "sell cooldown active"
	}

	s.log.Info().
		Str("agent_id", agent.ID).
		Float64("entry_price", entry).
		Float64("price", snap.Price).
		Float64("size", size).
		Msg("Proposing take-profit liquidation")

	return &OrderIntent{
		SubAccount:  exchange.SubAccountSpot,
		Side:        exchange.OrderSideSell,
		Price:       price,
		Size:        size,
		TimeInForce: exchange.TimeInForceIOC,
		Reason:      fmt.Sprintf("take-profit: price %.2f cleared entry %.2f by %.1f%%", snap.Price, entry, s.cfg.SpotDCA.TakeProfitPct*100),
	}, ""
}

// accumulate buys a fixed notional when quote balance allows. If the
// remainder after a fixed buy would fall below the exchange minimum,
// the whole balance is spent instead of stranding dust.
func (s *SpotDCA) accumulate(agent store.Agent, snap *market.Snapshot, spot *exchange.AccountState, cooldowns CooldownView, now time.Time) (*OrderIntent, string) {
	avail := spot.AvailableBalance()
	buyNotional := s.cfg.SpotDCA.BuyNotional
	if avail < buyNotional {
		return nil, fmt.Sprintf("quote balance %.2f below buy notional %.2f", avail, buyNotional)
	}

	notional := buyNotional
	if avail-buyNotional < s.cfg.MinNotional {
		notional = avail
	}

	meta := snap.Meta(exchange.SubAccountSpot)
	price := marketablePrice(snap.Price, meta.TickSize, exchange.OrderSideBuy)
	size := FloorToLot(notional/price, meta.LotSize)

	// Lot flooring can drop a minimum-notional buy just under the
	// exchange minimum; one extra lot fixes that when balance allows
	if size*price < s.cfg.MinNotional && (size+meta.LotSize)*price <= avail {
		size += meta.LotSize
	}
	if size <= 0 || size*price < s.cfg.MinNotional {
		return nil, fmt.Sprintf("buy notional %.2f below minimum %.2f after lot rounding", size*price, s.cfg.MinNotional)
	}

	if cooldowns.ShouldThrottle(agent.ID, ActionBuy, now) {
		return nil, "buy cooldown active"
	}

	s.log.Info().
		Str("agent_id", agent.ID).
		Float64("notional", size*price).
		Float64("size", size).
		Float64("price", price).
		Msg("Proposing accumulation buy")

	return &OrderIntent{
		SubAccount:  exchange.SubAccountSpot,
		Side:        exchange.OrderSideBuy,
		Price:       price,
		Size:        size,
		TimeInForce: exchange.TimeInForceIOC,
		Reason:      fmt.Sprintf("accumulation: %.2f quote into %s", size*price, snap.Symbol),
	}, ""
}

// basePosition returns the synthesized spot holding, if any
func basePosition(spot *exchange.AccountState) *exchange.Position {
	for i := range spot.Positions {
		if spot.Positions[i].Size > 0 {
			return &spot.Positions[i]
		}
	}
	return nil
}
