// Package reconcile cleans up an agent's account before its strategy
// runs: closing positions the current mandate disallows and topping up
// an under-funded sub-account from its sibling. Both operations are
// best-effort; their outcome gates, but never aborts, the cycle.
package reconcile

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/market"
	"github.com/ajitpratap0/alphapilot/internal/metrics"
	"github.com/ajitpratap0/alphapilot/internal/store"
	"github.com/ajitpratap0/alphapilot/internal/strategy"
)

// PositionReconciler closes positions that the agent's risk profile no
// longer allows, e.g. leveraged perp exposure left behind after an
// agent was switched to the spot-only DCA profile.
type PositionReconciler struct {
	log zerolog.Logger
}

// NewPositionReconciler creates a position reconciler
func NewPositionReconciler() *PositionReconciler {
	return &PositionReconciler{
		log: log.With().Str("component", "reconcile").Logger(),
	}
}

// disallowed returns the perp positions the profile forbids. Spot
// holdings are never disallowed; only the spot-only mandate forbids
// perp exposure.
func disallowed(profile store.Profile, perp *exchange.AccountState) []exchange.Position {
	if profile != store.ProfileSpotDCA || perp == nil {
		return nil
	}
	return perp.Positions
}

// CloseDisallowed submits a reduce-only immediate-or-cancel close for
// every mandate-violating position. The closing price is rounded
// against the closer: up when buying back a short, down when selling
// out a long, biasing toward fill certainty. Returns true only when
// every disallowed position was closed; a false return tells the
// engine to skip this agent's strategy for the cycle rather than layer
// new exposure on an account still being cleaned up. Individual close
// failures are logged and do not stop the remaining closes.
func (r *PositionReconciler) CloseDisallowed(ctx context.Context, gw exchange.Gateway, agent store.Agent, snap *market.Snapshot, perp *exchange.AccountState) bool {
	positions := disallowed(agent.Strategy.Profile, perp)
	if len(positions) == 0 {
		return true
	}

	r.log.Warn().
		Str("agent_id", agent.ID).
		Str("profile", string(agent.Strategy.Profile)).
		Int("positions", len(positions)).
		Msg("Closing mandate-violating positions")

	meta := snap.Meta(exchange.SubAccountPerp)
	allClosed := true
	for _, pos := range positions {
		side := pos.ClosingSide()
		price := strategy.RoundToTick(snap.Price, meta.TickSize, side == exchange.OrderSideBuy)

		req := exchange.OrderRequest{
			Symbol:      snap.Symbol,
			SubAccount:  exchange.SubAccountPerp,
			Side:        side,
			Price:       price,
			Size:        pos.Size,
			ReduceOnly:  true,
			TimeInForce: exchange.TimeInForceIOC,
		}
		ack, err := gw.PlaceOrder(ctx, req)
		if err != nil {
			allClosed = false
			r.log.Error().Err(err).
				Str("agent_id", agent.ID).
				Str("side", string(side)).
				Float64("size", pos.Size).
				Msg("Failed to close disallowed position")
			continue
		}
		metrics.PositionsReconciled.Inc()
		r.log.Info().
			Str("agent_id", agent.ID).
			Str("order_id", ack.OrderID).
			Str("side", string(side)).
			Float64("size", pos.Size).
			Float64("price", price).
			Msg("Closed disallowed position")
	}
	return allClosed
}
