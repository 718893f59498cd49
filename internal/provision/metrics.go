package provision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeDone    = "done"
	outcomeFailed  = "failed"
	outcomeExists  = "already_exists"
	outcomeInvalid = "invalid"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idbroker_provision_runs_total",
		Help: "Provisioning runs by outcome.",
	}, []string{"outcome"})

	stepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idbroker_provision_step_failures_total",
		Help: "Provisioning step failures by the state the failed step would have reached.",
	}, []string{"state"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "idbroker_provision_run_duration_seconds",
		Help:    "Wall-clock duration of successful provisioning runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

type metrics struct {
	runs         *prometheus.CounterVec
	stepFailures *prometheus.CounterVec
	duration     prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		runs:         runsTotal,
		stepFailures: stepFailuresTotal,
		duration:     runDuration,
	}
}
