package observability

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, metric interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	if out.Gauge != nil {
		return out.Gauge.GetValue()
	}
	return out.Counter.GetValue()
}

func TestRecordCompletionPersisted(t *testing.T) {
	ts := time.Date(2025, time.January, 15, 9, 30, 0, 0, time.UTC)
	RecordCompletionPersisted(ts)
	require.Equal(t, float64(ts.Unix()), gaugeValue(t, completionPersistGauge))

	// A zero timestamp must not clobber the watermark.
	RecordCompletionPersisted(time.Time{})
	require.Equal(t, float64(ts.Unix()), gaugeValue(t, completionPersistGauge))
}

func TestRecordIdempotentReplay(t *testing.T) {
	before := gaugeValue(t, completionReplayCounter)
	RecordIdempotentReplay()
	RecordIdempotentReplay()
	require.Equal(t, before+2, gaugeValue(t, completionReplayCounter))
}

func TestRecordOverdueClientsPerTenant(t *testing.T) {
	RecordOverdueClients("tenant-a", 3)
	RecordOverdueClients("tenant-b", 0)

	require.Equal(t, 3.0, gaugeValue(t, overdueClientsGauge.WithLabelValues("tenant-a")))
	require.Equal(t, 0.0, gaugeValue(t, overdueClientsGauge.WithLabelValues("tenant-b")))

	RecordOverdueClients("tenant-a", 1)
	require.Equal(t, 1.0, gaugeValue(t, overdueClientsGauge.WithLabelValues("tenant-a")))
}
