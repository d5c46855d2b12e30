// Package engine drives the recurring strategy cycle: one scheduler,
// one shared market snapshot per tick, agents processed sequentially.
package engine

import (
	"sync"
	"time"

	"github.com/ajitpratap0/alphapilot/internal/strategy"
)

// cooldownKey identifies one agent's throttle state for one action kind
type cooldownKey struct {
	agentID string
	kind    strategy.ActionKind
}

// Tracker holds per-agent action timestamps and answers throttle
// queries. It is owned by the scheduler and handed to executors through
// the read-only CooldownView; it is never package-global so engines
// stay instantiable in tests. State lives in memory only: a restart
// clears it, which is acceptable while redeploys are rare relative to
// the cooldown windows.
type Tracker struct {
	buyWindow  time.Duration
	sellWindow time.Duration

	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

// NewTracker creates a tracker with independent buy and sell windows
func NewTracker(buyWindow, sellWindow time.Duration) *Tracker {
	return &Tracker{
		buyWindow:  buyWindow,
		sellWindow: sellWindow,
		last:       make(map[cooldownKey]time.Time),
	}
}

// Window returns the cooldown window for an action kind
func (t *Tracker) Window(kind strategy.ActionKind) time.Duration {
	if kind == strategy.ActionBuy {
		return t.buyWindow
	}
	return t.sellWindow
}

// ShouldThrottle reports whether the agent acted of this kind within
// the cooldown window
func (t *Tracker) ShouldThrottle(agentID string, kind strategy.ActionKind, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[cooldownKey{agentID: agentID, kind: kind}]
	if !ok {
		return false
	}
	return now.Sub(last) < t.Window(kind)
}

// RecordAction stamps a successful order submission. Callers must only
// record after the exchange acknowledged the order: a failed submission
// must stay retryable on the very next cycle.
func (t *Tracker) RecordAction(agentID string, kind strategy.ActionKind, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[cooldownKey{agentID: agentID, kind: kind}] = now
}
