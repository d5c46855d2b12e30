package exchange

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker thresholds for gateway calls
const (
	breakerMinRequests     = 5                // Minimum requests before tripping
	breakerFailureRatio    = 0.6              // Failure ratio threshold (60%)
	breakerOpenTimeout     = 30 * time.Second // How long circuit stays open
	breakerHalfOpenMaxReqs = 3                // Max requests in half-open state
	breakerCountInterval   = 10 * time.Second // Window for counting failures
)

var (
	breakerStateGauge  *prometheus.GaugeVec
	breakerMetricsOnce sync.Once
)

// initBreakerMetrics registers the breaker state gauge exactly once
func initBreakerMetrics() {
	breakerMetricsOnce.Do(func() {
		breakerStateGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_breaker_state",
				Help: "Gateway circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"exchange"},
		)
	})
}

// newGatewayBreaker creates the circuit breaker shared by all calls of one
// gateway. A tripped breaker fails agent processing fast instead of letting
// every agent in a cycle time out against a dead exchange.
func newGatewayBreaker(name string) *gobreaker.CircuitBreaker {
	initBreakerMetrics()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenMaxReqs,
		Interval:    breakerCountInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && failureRatio >= breakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			updateBreakerMetric(name, to)
		},
	})

	updateBreakerMetric(name, cb.State())
	return cb
}

func updateBreakerMetric(name string, state gobreaker.State) {
	if breakerStateGauge == nil {
		return
	}
	var value float64
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateOpen:
		value = 1
	case gobreaker.StateHalfOpen:
		value = 2
	}
	breakerStateGauge.WithLabelValues(name).Set(value)
}
