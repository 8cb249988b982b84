package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersByLabel(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Acquisition("granted")
	m.Acquisition("granted")
	m.Acquisition("held")
	m.Cleanup("inactivity", 2, false)
	m.Cleanup("inactivity", 0, true)
	m.Finalized("occupied", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.acquisitions.WithLabelValues("granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquisitions.WithLabelValues("held")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanupRuns.WithLabelValues("inactivity", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanupRuns.WithLabelValues("inactivity", "partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cleanupSeats.WithLabelValues("inactivity")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.finalized.WithLabelValues("occupied")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Acquisition("granted")
		m.Release("released")
		m.Cleanup("quit", 1, false)
		m.Finalized("occupied", 1)
		m.Dispatched("ok")
	})
}
