package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coaching_service",
		Subsystem: "ledger",
		Name:      "last_completion_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completion persisted to Postgres.",
	})
	completionReplayCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coaching_service",
		Subsystem: "ledger",
		Name:      "idempotent_replays_total",
		Help:      "Number of completion submissions resolved to an existing record.",
	})
	overdueClientsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "coaching_service",
		Subsystem: "cadence",
		Name:      "overdue_clients",
		Help:      "Number of clients with an overdue check-in as of the last sweep.",
	}, []string{"tenant_id"})
)

func init() {
	prometheus.MustRegister(completionPersistGauge, completionReplayCounter, overdueClientsGauge)
}

// RecordCompletionPersisted updates the ledger watermark gauge.
func RecordCompletionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	completionPersistGauge.Set(float64(ts.Unix()))
}

// RecordIdempotentReplay counts a completion submission that matched an
// existing record.
func RecordIdempotentReplay() {
	completionReplayCounter.Inc()
}

// RecordOverdueClients publishes the overdue count from a cadence sweep.
func RecordOverdueClients(tenantID string, count int) {
	overdueClientsGauge.WithLabelValues(tenantID).Set(float64(count))
}
