package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_sync",
		Subsystem: "syncer",
		Name:      "runs_total",
		Help:      "Number of sync runs grouped by terminal outcome.",
	}, []string{"outcome"})

	retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "health_sync",
		Subsystem: "syncer",
		Name:      "retries_total",
		Help:      "Number of whole-run retries performed.",
	})

	missingMetricCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_sync",
		Subsystem: "syncer",
		Name:      "missing_metrics_total",
		Help:      "Number of runs where both sources agreed a metric was empty.",
	}, []string{"metric"})

	sourceErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_sync",
		Subsystem: "syncer",
		Name:      "source_read_errors_total",
		Help:      "Number of per-source read failures grouped by source and metric.",
	}, []string{"source", "metric"})
)

func init() {
	prometheus.MustRegister(runsCounter, retryCounter, missingMetricCounter, sourceErrorCounter)
}
