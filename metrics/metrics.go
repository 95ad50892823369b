// Package metrics instruments the engine with Prometheus counters and
// histograms, exposed by the HTTP facade at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the engine registry updates. A single
// instance is shared across all nodes in a running engine.
type Metrics struct {
	BlocksProposed      *prometheus.CounterVec
	ReputationUpdates   prometheus.Counter
	SyncOperations      prometheus.Counter
	ConvergenceAttempts prometheus.Histogram
}

// New constructs and registers a Metrics bundle against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksProposed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apstatchain_blocks_proposed_total",
			Help: "Blocks appended to any node's chain, by kind.",
		}, []string{"kind"}),
		ReputationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apstatchain_reputation_updates_total",
			Help: "Individual attester reputation awards applied.",
		}),
		SyncOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apstatchain_sync_operations_total",
			Help: "Pairwise node sync operations performed.",
		}),
		ConvergenceAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "apstatchain_convergence_score",
			Help:    "Weighted convergence scores observed at PoK proposal attempts.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	reg.MustRegister(m.BlocksProposed, m.ReputationUpdates, m.SyncOperations, m.ConvergenceAttempts)
	return m
}
