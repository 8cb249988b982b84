// Package metrics holds the prometheus collectors shared by the seat
// locking, cleanup and finalization components.  A nil *Metrics is valid
// and records nothing, which keeps tests and tools free of registries.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	acquisitions *prometheus.CounterVec
	releases     *prometheus.CounterVec
	cleanupRuns  *prometheus.CounterVec
	cleanupSeats *prometheus.CounterVec
	finalized    *prometheus.CounterVec
	dispatched   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatlock",
			Name:      "acquisitions_total",
			Help:      "Seat lock acquisition attempts by result.",
		}, []string{"result"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatlock",
			Name:      "releases_total",
			Help:      "Seat lock release attempts by result.",
		}, []string{"result"}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatlock",
			Name:      "cleanup_runs_total",
			Help:      "Bulk cleanup runs by trigger and result.",
		}, []string{"trigger", "result"}),
		cleanupSeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatlock",
			Name:      "cleanup_seats_released_total",
			Help:      "Seats released by bulk cleanup, by trigger.",
		}, []string{"trigger"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatlock",
			Name:      "finalized_seats_total",
			Help:      "Seats converted into durable occupancy, by result.",
		}, []string{"result"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatlock",
			Name:      "background_tasks_total",
			Help:      "Fire-and-forget cleanup tasks by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.acquisitions, m.releases, m.cleanupRuns, m.cleanupSeats, m.finalized, m.dispatched)
	return m
}

func (m *Metrics) Acquisition(result string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(result).Inc()
}

func (m *Metrics) Release(result string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result).Inc()
}

// Cleanup records one bulk cleanup run and the seats it released.
func (m *Metrics) Cleanup(trigger string, released int, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "partial"
	}
	m.cleanupRuns.WithLabelValues(trigger, result).Inc()
	if released > 0 {
		m.cleanupSeats.WithLabelValues(trigger).Add(float64(released))
	}
}

func (m *Metrics) Finalized(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.finalized.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) Dispatched(result string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(result).Inc()
}
