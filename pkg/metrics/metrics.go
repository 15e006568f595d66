package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bridge counters, partitioned by source/destination chain name.

var (
	// Fee probing
	ProbeAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oft_bridge",
		Subsystem: "prober",
		Name:      "attempts_total",
		Help:      "Total quoteSend probes, by outcome",
	}, []string{"from", "to", "result"})

	ProbeAcceptedGas = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oft_bridge",
		Subsystem: "prober",
		Name:      "accepted_gas",
		Help:      "Executor gas of the first accepted candidate",
		Buckets:   prometheus.ExponentialBuckets(20_000, 2, 11),
	}, []string{"from", "to"})

	NoViableRouteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oft_bridge",
		Subsystem: "prober",
		Name:      "no_viable_route_total",
		Help:      "Probes that exhausted every candidate",
	}, []string{"from", "to"})

	// Orchestrator
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oft_bridge",
		Subsystem: "orchestrator",
		Name:      "transfers_total",
		Help:      "Recorded transfer attempts, by terminal status",
	}, []string{"from", "to", "status"})

	// Balance cache
	BalanceFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oft_bridge",
		Subsystem: "balance",
		Name:      "fetches_total",
		Help:      "Balance fetches, by outcome (ok, error, superseded)",
	}, []string{"result"})
)
