package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/market"
	"github.com/ajitpratap0/alphapilot/internal/metrics"
	"github.com/ajitpratap0/alphapilot/internal/reconcile"
	"github.com/ajitpratap0/alphapilot/internal/signer"
	"github.com/ajitpratap0/alphapilot/internal/store"
	"github.com/ajitpratap0/alphapilot/internal/strategy"
)

// AgentLister is the agent store surface the engine consumes
type AgentLister interface {
	ListActiveAgents(ctx context.Context) ([]*store.Agent, error)
}

// SnapshotResolver is the market surface the engine consumes
type SnapshotResolver interface {
	Resolve(ctx context.Context) (*market.Snapshot, error)
}

// Engine runs one full cycle: resolve the shared snapshot, list active
// agents, and process each agent sequentially. Sequential processing
// bounds exchange rate-limit exposure and keeps transfers and orders on
// one account from interleaving.
type Engine struct {
	gateway    exchange.Gateway
	resolver   SnapshotResolver
	agents     AgentLister
	creds      signer.Resolver
	cooldowns  *Tracker
	positions  *reconcile.PositionReconciler
	balances   *reconcile.BalanceReconciler
	strategies config.StrategiesConfig
	log        zerolog.Logger
}

// New creates an engine
func New(gw exchange.Gateway, resolver SnapshotResolver, agents AgentLister, creds signer.Resolver, cooldowns *Tracker, strategies config.StrategiesConfig, transferBuffer float64) *Engine {
	return &Engine{
		gateway:    gw,
		resolver:   resolver,
		agents:     agents,
		creds:      creds,
		cooldowns:  cooldowns,
		positions:  reconcile.NewPositionReconciler(),
		balances:   reconcile.NewBalanceReconciler(transferBuffer),
		strategies: strategies,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// RunCycle executes one cycle. A returned error means the whole cycle
// was abandoned (no snapshot or no agent list); per-agent failures are
// logged and isolated, never propagated.
func (e *Engine) RunCycle(ctx context.Context) error {
	start := time.Now()

	snap, err := e.resolver.Resolve(ctx)
	if err != nil {
		metrics.SnapshotFailures.Inc()
		metrics.CyclesTotal.WithLabelValues(metrics.CycleResultAbandoned).Inc()
		return fmt.Errorf("cycle abandoned, no market snapshot: %w", err)
	}
	metrics.SnapshotPrice.WithLabelValues(snap.Symbol, snap.PriceSource).Set(snap.Price)
	metrics.SnapshotFundingRate.WithLabelValues(snap.Symbol).Set(snap.FundingRate)

	agents, err := e.agents.ListActiveAgents(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues(metrics.CycleResultAbandoned).Inc()
		return fmt.Errorf("cycle abandoned, agent store unavailable: %w", err)
	}
	metrics.ActiveAgents.Set(float64(len(agents)))

	for _, agent := range agents {
		if agent == nil {
			continue
		}
		if err := e.processAgent(ctx, *agent, snap); err != nil {
			metrics.AgentFailures.Inc()
			e.log.Error().Err(err).
				Str("agent_id", agent.ID).
				Str("wallet", agent.WalletAddress).
				Msg("Agent processing failed, continuing with next agent")
		}
	}

	metrics.CyclesTotal.WithLabelValues(metrics.CycleResultOK).Inc()
	metrics.CycleDuration.Observe(float64(time.Since(start).Milliseconds()))
	e.log.Info().
		Int("agents", len(agents)).
		Float64("price", snap.Price).
		Dur("took", time.Since(start)).
		Msg("Cycle complete")
	return nil
}

// processAgent runs the full per-agent pipeline: authorize, fetch
// accounts, reconcile positions and balances, decide, submit
func (e *Engine) processAgent(ctx context.Context, agent store.Agent, snap *market.Snapshot) error {
	if !agent.IsActive {
		return nil
	}

	alog := config.NewAgentLogger(agent.ID, agent.WalletAddress)

	executor, err := strategy.ForProfile(agent.Strategy.Profile, e.strategies)
	if err != nil {
		return err
	}

	creds, err := e.creds.Resolve(ctx, agent.SecretPath)
	if err != nil {
		return fmt.Errorf("failed to resolve signing credentials: %w", err)
	}
	gw := e.gateway.WithCredentials(creds)

	accounts, err := e.fetchAccounts(ctx, gw)
	if err != nil {
		return err
	}

	if allClosed := e.positions.CloseDisallowed(ctx, gw, agent, snap, accounts[exchange.SubAccountPerp]); !allClosed {
		alog.Warn().Msg("Disallowed positions remain open, skipping strategy this cycle")
		return nil
	}

	tradeSub := exchange.SubAccountPerp
	if agent.Strategy.Profile == store.ProfileSpotDCA {
		tradeSub = exchange.SubAccountSpot
	}
	trade, sibling := accounts[tradeSub], accounts[tradeSub.Sibling()]
	if transferred := e.balances.Fund(ctx, gw, agent, trade, sibling, e.fundingTarget(agent.Strategy.Profile)); transferred {
		// Decisions must see post-transfer balances
		accounts, err = e.fetchAccounts(ctx, gw)
		if err != nil {
			return fmt.Errorf("failed to re-fetch accounts after transfer: %w", err)
		}
	}

	now := time.Now()
	accountSet := strategy.AccountSet{
		Spot: accounts[exchange.SubAccountSpot],
		Perp: accounts[exchange.SubAccountPerp],
	}
	decision := executor.Decide(agent, snap, accountSet, e.cooldowns, now)
	if len(decision.Orders) == 0 {
		alog.Debug().
			Str("profile", string(decision.Profile)).
			Str("reason", decision.Reason).
			Msg("No action")
		return nil
	}

	for _, intent := range decision.Orders {
		e.submit(ctx, gw, alog, agent, snap, decision.Profile, intent, now)
	}
	return nil
}

// fetchAccounts reads both sub-account states
func (e *Engine) fetchAccounts(ctx context.Context, gw exchange.Gateway) (map[exchange.SubAccount]*exchange.AccountState, error) {
	accounts := make(map[exchange.SubAccount]*exchange.AccountState, 2)
	for _, sub := range []exchange.SubAccount{exchange.SubAccountSpot, exchange.SubAccountPerp} {
		state, err := gw.AccountState(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s account state: %w", sub, err)
		}
		accounts[sub] = state
	}
	return accounts, nil
}

// fundingTarget returns the quote balance a profile needs to trade at
// all this cycle
func (e *Engine) fundingTarget(profile store.Profile) float64 {
	if profile == store.ProfileSpotDCA && e.strategies.SpotDCA.BuyNotional > e.strategies.MinNotional {
		return e.strategies.SpotDCA.BuyNotional
	}
	return e.strategies.MinNotional
}

// submit gates one order intent through the minimum-notional and
// cooldown checks, places it, and records the cooldown only on success
func (e *Engine) submit(ctx context.Context, gw exchange.Gateway, alog zerolog.Logger, agent store.Agent, snap *market.Snapshot, profile store.Profile, intent strategy.OrderIntent, now time.Time) {
	if intent.Notional() < e.strategies.MinNotional {
		alog.Warn().
			Float64("notional", intent.Notional()).
			Float64("min_notional", e.strategies.MinNotional).
			Msg("Dropping order intent below minimum notional")
		return
	}

	kind := intent.Kind()
	if e.cooldowns.ShouldThrottle(agent.ID, kind, now) {
		metrics.OrdersThrottled.WithLabelValues(string(profile), string(kind)).Inc()
		alog.Info().
			Str("action", string(kind)).
			Dur("window", e.cooldowns.Window(kind)).
			Msg("Order suppressed by cooldown")
		return
	}

	req := exchange.OrderRequest{
		Symbol:      snap.Symbol,
		SubAccount:  intent.SubAccount,
		Side:        intent.Side,
		Price:       intent.Price,
		Size:        intent.Size,
		ReduceOnly:  intent.ReduceOnly,
		TimeInForce: intent.TimeInForce,
	}
	ack, err := gw.PlaceOrder(ctx, req)
	if err != nil {
		// No cooldown on failure: the next cycle retries
		metrics.OrdersRejected.WithLabelValues(string(profile), metrics.NormalizeExchangeError(err)).Inc()
		alog.Error().Err(err).
			Str("side", string(intent.Side)).
			Float64("size", intent.Size).
			Float64("price", intent.Price).
			Msg("Order submission failed")
		return
	}

	metrics.OrdersSubmitted.WithLabelValues(string(profile), string(intent.Side)).Inc()
	e.cooldowns.RecordAction(agent.ID, kind, now)
	alog.Info().
		Str("order_id", ack.OrderID).
		Str("profile", string(profile)).
		Str("side", string(intent.Side)).
		Float64("size", intent.Size).
		Float64("price", intent.Price).
		Str("reason", intent.Reason).
		Msg("Order submitted")
}
