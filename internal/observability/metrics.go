package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dailyPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "health_sync",
		Subsystem: "persistence",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent daily record persisted to Postgres.",
	})
	syncSucceededGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "health_sync",
		Subsystem: "syncer",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync run.",
	})
)

func init() {
	prometheus.MustRegister(dailyPersistGauge, syncSucceededGauge)
}

// RecordDailyPersisted updates the persistence watermark gauge.
func RecordDailyPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	dailyPersistGauge.Set(float64(ts.Unix()))
}

// RecordSyncSucceeded updates the sync success watermark gauge.
func RecordSyncSucceeded(ts time.Time) {
	if ts.IsZero() {
		return
	}
	syncSucceededGauge.Set(float64(ts.Unix()))
}
