// Package strategy implements the per-agent trading decision logic.
// Each risk profile maps to exactly one executor; the engine selects the
// executor once per agent per cycle and calls Decide with the shared
// market snapshot and freshly fetched account state. Executors never
// talk to the exchange: they return order intents, the engine submits.
package strategy

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/market"
	"github.com/ajitpratap0/alphapilot/internal/store"
)

// ActionKind classifies an order for cooldown tracking. Buys and sells
// throttle independently.
type ActionKind string

const (
	ActionBuy  ActionKind = "buy"
	ActionSell ActionKind = "sell"
)

// KindForSide maps an order side to its cooldown action kind
func KindForSide(side exchange.OrderSide) ActionKind {
	if side == exchange.OrderSideBuy {
		return ActionBuy
	}
	return ActionSell
}

// CooldownView is the read side of the cooldown tracker. Executors that
// pace their own actions (spot DCA) consult it; recording happens in the
// engine, only after a successful submission.
type CooldownView interface {
	ShouldThrottle(agentID string, kind ActionKind, now time.Time) bool
}

// OrderIntent is one order an executor wants submitted
type OrderIntent struct {
	SubAccount  exchange.SubAccount
	Side        exchange.OrderSide
	Price       float64
	Size        float64
	ReduceOnly  bool
	TimeInForce exchange.TimeInForce
	Reason      string
}

// Kind returns the cooldown action kind for this intent
func (o OrderIntent) Kind() ActionKind {
	return KindForSide(o.Side)
}

// Notional returns price × size
func (o OrderIntent) Notional() float64 {
	return o.Price * o.Size
}

// Decision is the outcome of one executor run. An empty Orders slice is
// a no-action decision; Reason explains it for the logs either way.
type Decision struct {
	Profile store.Profile
	Orders  []OrderIntent
	Reason  string
}

// NoAction builds an empty decision with a reason
func NoAction(profile store.Profile, reason string) Decision {
	return Decision{Profile: profile, Reason: reason}
}

// AccountSet is the account state an executor decides against, fetched
// after balance reconciliation so decisions see post-transfer balances
type AccountSet struct {
	Spot *exchange.AccountState
	Perp *exchange.AccountState
}

// Executor is the single decision capability per risk profile
type Executor interface {
	Profile() store.Profile
	Decide(agent store.Agent, snap *market.Snapshot, accounts AccountSet, cooldowns CooldownView, now time.Time) Decision
}

// ForProfile selects the executor for an agent's risk profile. The set
// of profiles is closed; an unknown tag is an error, not a silent skip,
// so a bad row in the agent store is visible in the logs.
func ForProfile(profile store.Profile, cfg config.StrategiesConfig) (Executor, error) {
	switch profile {
	case store.ProfileConservative:
		return NewConservative(cfg), nil
	case store.ProfileAggressive:
		return NewAggressive(cfg), nil
	case store.ProfileSpotDCA:
		return NewSpotDCA(cfg), nil
	default:
		return nil, fmt.Errorf("unknown risk profile %q", profile)
	}
}
