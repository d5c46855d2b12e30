package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/strategy"
)

// Status is the operator-facing scheduler state served on /status
type Status struct {
	Running         bool      `json:"running"`
	CycleInterval   string    `json:"cycle_interval"`
	BuyCooldown     string    `json:"buy_cooldown"`
	SellCooldown    string    `json:"sell_cooldown"`
	CyclesRun       uint64    `json:"cycles_run"`
	LastCycleAt     time.Time `json:"last_cycle_at,omitempty"`
	LastCycleResult string    `json:"last_cycle_result,omitempty"`
}

// Scheduler drives the engine on a fixed interval from a single
// goroutine: an immediate first cycle, then one per tick. Cycles never
// overlap because the same goroutine runs them to completion. Stop only
// prevents future ticks; an in-flight cycle is left to finish.
type Scheduler struct {
	engine   *Engine
	interval time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	cycles    uint64
	lastAt    time.Time
	lastState string

	log zerolog.Logger
}

// NewScheduler creates a scheduler for the engine
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the cycle loop. Calling Start on a running scheduler
// is a logged no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Scheduler already running, ignoring start")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.interval).Msg("Scheduler started")

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		s.runOnce(runCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				s.log.Info().Msg("Scheduler stopped")
				return
			case <-ticker.C:
				s.runOnce(runCtx)
			}
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result := "ok"
	if err := s.engine.RunCycle(ctx); err != nil {
		// The schedule survives every cycle failure; only Stop ends it
		result = "abandoned"
		s.log.Error().Err(err).Msg("Cycle failed")
	}

	s.mu.Lock()
	s.cycles++
	s.lastAt = time.Now()
	s.lastState = result
	s.mu.Unlock()
}

// Stop prevents future ticks and waits for an in-flight cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Status reports whether the scheduler runs and its configured
// thresholds
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:         s.running,
		CycleInterval:   s.interval.String(),
		BuyCooldown:     s.engine.cooldowns.Window(strategy.ActionBuy).String(),
		SellCooldown:    s.engine.cooldowns.Window(strategy.ActionSell).String(),
		CyclesRun:       s.cycles,
		LastCycleAt:     s.lastAt,
		LastCycleResult: s.lastState,
	}
}
