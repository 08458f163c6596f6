// Package metrics registers the engine's Prometheus collectors. They are
// package-level so the pool, poller and coordinator can record events
// without threading a registry through every constructor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolCalls counts outbound chain calls by logical operation.
	PoolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "pool",
		Name:      "calls_total",
		Help:      "Outbound chain calls issued through the credential pool.",
	}, []string{"op"})

	// PoolThrottles counts throttle responses that put a slot on cooldown.
	PoolThrottles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "pool",
		Name:      "throttles_total",
		Help:      "Throttle or transport failures that triggered slot backoff.",
	})

	// PoolRateLimited counts calls abandoned because every slot was
	// cooling down.
	PoolRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "pool",
		Name:      "rate_limited_total",
		Help:      "Calls deferred because no credential slot was eligible.",
	})

	// PollTicks counts completed balance polling cycles.
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "poller",
		Name:      "ticks_total",
		Help:      "Completed balance polling cycles.",
	})

	// BalanceQueryErrors counts per-asset balance query failures.
	BalanceQueryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "poller",
		Name:      "balance_query_errors_total",
		Help:      "Balance queries that failed during polling cycles.",
	})

	// Sweeps counts sweep attempts by terminal outcome.
	Sweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "sweeper",
		Name:      "attempts_total",
		Help:      "Sweep attempts by recorded status transition.",
	}, []string{"status"})

	// SweptAmount accumulates swept minor units per asset symbol.
	SweptAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tronsweep",
		Subsystem: "sweeper",
		Name:      "swept_minor_units_total",
		Help:      "Broadcast sweep amounts in asset minor units.",
	}, []string{"symbol"})

	// EngineRunning reflects the controller state.
	EngineRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tronsweep",
		Subsystem: "engine",
		Name:      "running",
		Help:      "1 while the sweep engine is started.",
	})
)
