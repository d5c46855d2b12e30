package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphapilot/internal/strategy"
)

// TestTrackerThrottleWindows tests independent buy and sell windows
func TestTrackerThrottleWindows(t *testing.T) {
	tr := NewTracker(15*time.Minute, 5*time.Minute)
	now := time.Now()

	assert.False(t, tr.ShouldThrottle("agent-1", strategy.ActionBuy, now))
	tr.RecordAction("agent-1", strategy.ActionBuy, now)

	assert.True(t, tr.ShouldThrottle("agent-1", strategy.ActionBuy, now.Add(14*time.Minute)))
	assert.False(t, tr.ShouldThrottle("agent-1", strategy.ActionBuy, now.Add(15*time.Minute)))

	// Sells throttle independently of buys
	assert.False(t, tr.ShouldThrottle("agent-1", strategy.ActionSell, now.Add(time.Minute)))
	tr.RecordAction("agent-1", strategy.ActionSell, now)
	assert.True(t, tr.ShouldThrottle("agent-1", strategy.ActionSell, now.Add(4*time.Minute)))
	assert.False(t, tr.ShouldThrottle("agent-1", strategy.ActionSell, now.Add(6*time.Minute)))

	// Other agents are unaffected
	assert.False(t, tr.ShouldThrottle("agent-2", strategy.ActionBuy, now.Add(time.Minute)))
}

// TestTrackerWindow tests the threshold accessor used by /status
func TestTrackerWindow(t *testing.T) {
	tr := NewTracker(15*time.Minute, 5*time.Minute)
	assert.Equal(t, 15*time.Minute, tr.Window(strategy.ActionBuy))
	assert.Equal(t, 5*time.Minute, tr.Window(strategy.ActionSell))
}

func waitForCycles(t *testing.T, s *Scheduler, want uint64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status().CyclesRun >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scheduler never reached %d cycles", want)
}

// TestSchedulerRunsImmediatelyThenTicks tests the first-cycle-now rule
func TestSchedulerRunsImmediatelyThenTicks(t *testing.T) {
	f := newFixture(t, dcaAgent("agent-1"))
	fundSpot(f, 100)

	s := NewScheduler(f.engine, 20*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	waitForCycles(t, s, 1)
	waitForCycles(t, s, 3)

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "ok", status.LastCycleResult)
	assert.False(t, status.LastCycleAt.IsZero())
}

// TestSchedulerStopPreventsFutureTicks tests Stop semantics
func TestSchedulerStopPreventsFutureTicks(t *testing.T) {
	f := newFixture(t, dcaAgent("agent-1"))
	fundSpot(f, 100)

	s := NewScheduler(f.engine, 10*time.Millisecond)
	s.Start(context.Background())
	waitForCycles(t, s, 2)
	s.Stop()

	after := s.Status().CyclesRun
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, s.Status().CyclesRun)
	assert.False(t, s.Status().Running)
}

// TestSchedulerStartIsIdempotent tests the re-entrant start no-op
func TestSchedulerStartIsIdempotent(t *testing.T) {
	f := newFixture(t, dcaAgent("agent-1"))
	fundSpot(f, 100)

	s := NewScheduler(f.engine, 10*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()
	s.Start(context.Background()) // no second loop

	waitForCycles(t, s, 2)
	assert.True(t, s.Status().Running)
}

// TestSchedulerSurvivesCycleFailures tests that the schedule outlives
// every failure mode
func TestSchedulerSurvivesCycleFailures(t *testing.T) {
	f := newFixture(t, dcaAgent("agent-1"))
	f.lister.err = errors.New("database down")

	s := NewScheduler(f.engine, 10*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	waitForCycles(t, s, 3)
	assert.Equal(t, "abandoned", s.Status().LastCycleResult)
	assert.True(t, s.Status().Running)
}

// TestSchedulerStatusThresholds tests the operator-facing thresholds
func TestSchedulerStatusThresholds(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.engine, time.Minute)

	status := s.Status()
	require.False(t, status.Running)
	assert.Equal(t, "1m0s", status.CycleInterval)
	assert.Equal(t, "15m0s", status.BuyCooldown)
	assert.Equal(t, "5m0s", status.SellCooldown)
}
