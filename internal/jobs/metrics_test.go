package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:integrity")))
}

func TestAddAnomalies(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddAnomalies("unbalanced", 7, 2)
	m.AddAnomalies("unbalanced", 7, 0)
	m.AddAnomalies("negative_remain", 0, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.anomalies.WithLabelValues("unbalanced", "7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies.WithLabelValues("negative_remain", "0")))
}

func TestNilMetricsTrackerIsNoop(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddAnomalies("unbalanced", 1, 1)
}
