// Package metrics exposes Prometheus instrumentation and the operator
// HTTP surface (metrics, health, scheduler status) for the engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle result labels (bounded set)
const (
	CycleResultOK        = "ok"
	CycleResultAbandoned = "abandoned"
)

// Exchange API error categories (bounded set)
const (
	ExchangeErrorTimeout     = "timeout"
	ExchangeErrorRateLimit   = "rate_limit"
	ExchangeErrorAuth        = "authentication"
	ExchangeErrorNetwork     = "network"
	ExchangeErrorInvalidReq  = "invalid_request"
	ExchangeErrorServerError = "server_error"
	ExchangeErrorOther       = "other"
)

// Engine cycle metrics
var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_cycles_total",
		Help: "Engine cycles by result (ok, abandoned)",
	}, []string{"result"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_cycle_duration_ms",
		Help:    "Full cycle duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_active_agents",
		Help: "Active agents processed in the last cycle",
	})

	AgentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_agent_failures_total",
		Help: "Per-agent processing failures, isolated from the cycle",
	})
)

// Order and transfer metrics
var (
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_orders_submitted_total",
		Help: "Successfully submitted orders by strategy and side",
	}, []string{"strategy", "side"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_orders_rejected_total",
		Help: "Order submissions that failed at the exchange",
	}, []string{"strategy", "error"})

	OrdersThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_orders_throttled_total",
		Help: "Order intents suppressed by an active cooldown",
	}, []string{"strategy", "action"})

	TransfersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_transfers_total",
		Help: "Inter-account transfers by direction",
	}, []string{"direction"})

	PositionsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_positions_reconciled_total",
		Help: "Mandate-violating positions closed by the reconciler",
	})
)

// Market data metrics
var (
	SnapshotPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_snapshot_price",
		Help: "Price of the last resolved market snapshot",
	}, []string{"symbol", "source"})

	SnapshotFundingRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_snapshot_funding_rate",
		Help: "Funding rate signal of the last resolved snapshot",
	}, []string{"symbol"})

	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_snapshot_failures_total",
		Help: "Cycles abandoned because no price source resolved",
	})
)

// NormalizeExchangeError maps arbitrary exchange error messages to a
// bounded label set
func NormalizeExchangeError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ExchangeErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return ExchangeErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403") || strings.Contains(errStr, "signature"):
		return ExchangeErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") || strings.Contains(errStr, "refused"):
		return ExchangeErrorNetwork
	case strings.Contains(errStr, "invalid") || strings.Contains(errStr, "400"):
		return ExchangeErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return ExchangeErrorServerError
	default:
		return ExchangeErrorOther
	}
}
