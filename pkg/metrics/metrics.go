package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	BackendLabel = "backend"
	OutcomeLabel = "outcome"

	Optimal = "optimal"
	Timeout = "timeout"
	NoModel = "no_model"
	Failed  = "failed"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_runs_total",
			Help: "Number of extractions by backend and outcome",
		},
		[]string{BackendLabel, OutcomeLabel},
	)

	modelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_models_total",
			Help: "Number of improving models consumed from solve sessions",
		},
		[]string{BackendLabel},
	)

	solveSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_solve_seconds",
			Help:    "Wall-clock time of an extraction from grounding to the last model",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{BackendLabel},
	)
)

// Register adds the extraction collectors to r. Registering twice on the
// same registry is not an error.
func Register(r prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{runsTotal, modelsTotal, solveSeconds} {
		if err := r.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// ObserveRun records one finished extraction.
func ObserveRun(backend, outcome string, models int, elapsed time.Duration) {
	runsTotal.WithLabelValues(backend, outcome).Inc()
	modelsTotal.WithLabelValues(backend).Add(float64(models))
	solveSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
}
