// Package metrics exposes the run-loop budget, pool, and mux counters an
// operator would graph, re-exposed as Prometheus collectors in place of
// the teacher's Pool.metrics()/Manager.MetricsJSON() hand-rolled JSON
// snapshot (internal/sched/sched.go in the teacher repo). The lock
// contention/wait-stat histogram reporting the teacher also exposed is
// not reproduced here — spec.md names stats/reporting as an out-of-scope
// external collaborator; only the numbers this module itself produces
// are graphed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector this module registers, mirroring the
// teacher's per-pool metrics() grouping (queue depth, worker busy/idle,
// submitted/completed/rejected) translated to this module's own
// run-loop/pool/mux vocabulary (spec.md §13.5).
type Registry struct {
	RunqueueDepth   *prometheus.GaugeVec
	TaskletsRun     *prometheus.CounterVec
	WorkerBudget    *prometheus.HistogramVec

	PoolAllocated *prometheus.GaugeVec
	PoolUsed      *prometheus.GaugeVec
	PoolFailed    *prometheus.GaugeVec

	H1ParseErrors  *prometheus.CounterVec
	H1Requests     *prometheus.CounterVec
	H1ConnModes    *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		RunqueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mincore",
			Subsystem: "sched",
			Name:      "runqueue_depth",
			Help:      "Current depth of a worker thread's local run queue.",
		}, []string{"tid"}),
		TaskletsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mincore",
			Subsystem: "sched",
			Name:      "tasklets_run_total",
			Help:      "Tasklets processed, by class (urgent/normal/bulk).",
		}, []string{"tid", "class"}),
		WorkerBudget: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mincore",
			Subsystem: "sched",
			Name:      "pass_budget_consumed",
			Help:      "Tasks processed per Pass() call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"tid"}),

		PoolAllocated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mincore",
			Subsystem: "pool",
			Name:      "allocated",
			Help:      "Objects currently allocated from the pool.",
		}, []string{"pool"}),
		PoolUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mincore",
			Subsystem: "pool",
			Name:      "used",
			Help:      "Objects currently checked out of the pool.",
		}, []string{"pool"}),
		PoolFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mincore",
			Subsystem: "pool",
			Name:      "alloc_failed_total",
			Help:      "Cumulative allocation attempts that failed even after a GC pass.",
		}, []string{"pool"}),

		H1ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mincore",
			Subsystem: "h1",
			Name:      "parse_errors_total",
			Help:      "Malformed-message parse failures, by direction.",
		}, []string{"side"}),
		H1Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mincore",
			Subsystem: "h1",
			Name:      "requests_total",
			Help:      "Requests fully parsed.",
		}, []string{"frontend"}),
		H1ConnModes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mincore",
			Subsystem: "h1",
			Name:      "connection_mode_total",
			Help:      "Resolved connection mode, by mode (kal/tun/clo).",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.RunqueueDepth, m.TaskletsRun, m.WorkerBudget,
		m.PoolAllocated, m.PoolUsed, m.PoolFailed,
		m.H1ParseErrors, m.H1Requests, m.H1ConnModes,
	)
	return m
}

// ObservePoolSnapshot records a pool.Snapshot against name's gauges, per
// spec.md §4.4's allocated/used/failed bookkeeping.
func (m *Registry) ObservePoolSnapshot(name string, allocated, used, failed int) {
	m.PoolAllocated.WithLabelValues(name).Set(float64(allocated))
	m.PoolUsed.WithLabelValues(name).Set(float64(used))
	m.PoolFailed.WithLabelValues(name).Set(float64(failed))
}
