// Package metrics defines the prometheus instrumentation for estimation
// runs. Collectors are package-level and unregistered by default; callers
// that expose metrics opt in via MustRegister.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RunsTotal counts completed estimation runs.
	RunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgesampling",
		Name:      "runs_total",
		Help:      "Total number of completed bridge sampling estimation runs",
	})

	// NonConvergedTotal counts runs that exhausted the iteration budget
	// before reaching the convergence tolerance.
	NonConvergedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgesampling",
		Name:      "nonconverged_total",
		Help:      "Runs that returned a flagged estimate without reaching tolerance",
	})

	// Iterations observes the number of fixed-point iterations per run.
	Iterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bridgesampling",
		Name:      "iterations",
		Help:      "Fixed-point iterations used per estimation run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// MustRegister registers all estimation collectors with the given registry.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RunsTotal, NonConvergedTotal, Iterations)
}

// ObserveRun records the outcome of one estimation run.
func ObserveRun(iterations int, converged bool) {
	RunsTotal.Inc()
	Iterations.Observe(float64(iterations))
	if !converged {
		NonConvergedTotal.Inc()
	}
}
