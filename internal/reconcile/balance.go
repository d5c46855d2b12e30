package reconcile

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/metrics"
	"github.com/ajitpratap0/alphapilot/internal/store"
)

// BalanceReconciler tops up an under-funded trading sub-account from
// its sibling. The buffer keeps a small remainder on the sibling and
// gives the funded side headroom over the exact minimum, so rounding
// never strands either account at zero or one cent short.
type BalanceReconciler struct {
	buffer float64
	log    zerolog.Logger
}

// NewBalanceReconciler creates a balance reconciler with a fixed
// quote-unit buffer
func NewBalanceReconciler(buffer float64) *BalanceReconciler {
	return &BalanceReconciler{
		buffer: buffer,
		log:    log.With().Str("component", "reconcile").Logger(),
	}
}

// Fund transfers quote balance from the sibling sub-account when the
// trading sub-account cannot cover the minimum order notional. Returns
// true when a transfer was submitted; the caller must then re-fetch
// account state before any strategy decision. Best-effort: a failed or
// skipped transfer just means the strategy sees insufficient balance
// and stands down.
func (b *BalanceReconciler) Fund(ctx context.Context, gw exchange.Gateway, agent store.Agent, trade, sibling *exchange.AccountState, minNotional float64) bool {
	if trade == nil || sibling == nil {
		return false
	}

	avail := trade.AvailableBalance()
	if avail >= minNotional {
		return false
	}

	sibAvail := sibling.AvailableBalance()
	if sibAvail < minNotional {
		b.log.Debug().
			Str("agent_id", agent.ID).
			Float64("trade_available", avail).
			Float64("sibling_available", sibAvail).
			Msg("Both sub-accounts under-funded, skipping transfer")
		return false
	}

	// Cover the shortfall with buffer headroom, never draining the
	// sibling below the buffer
	amount := math.Min(sibAvail-b.buffer, minNotional-avail+b.buffer)
	if amount <= 0 {
		return false
	}

	direction := exchange.TransferToPerp
	if trade.SubAccount == exchange.SubAccountSpot {
		direction = exchange.TransferToSpot
	}

	ack, err := gw.Transfer(ctx, exchange.TransferRequest{
		Direction: direction,
		Asset:     trade.QuoteAsset,
		Amount:    amount,
	})
	if err != nil {
		b.log.Warn().Err(err).
			Str("agent_id", agent.ID).
			Str("direction", string(direction)).
			Float64("amount", amount).
			Msg("Balance transfer failed, strategy will see insufficient funds")
		return false
	}

	metrics.TransfersSubmitted.WithLabelValues(string(direction)).Inc()
	b.log.Info().
		Str("agent_id", agent.ID).
		Str("tx_id", ack.TxID).
		Str("direction", string(direction)).
		Float64("amount", amount).
		Msg("Funded trading sub-account from sibling")
	return true
}
