// Package metrics exposes Prometheus collectors for confirmation
// transitions, notification delivery and sweep cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors.  A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	transitions   *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	notifyFailed  *prometheus.CounterVec
	sweepCycles   prometheus.Counter
	sweepSpots    *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spots",
			Name:      "confirmation_transitions_total",
			Help:      "Committed confirmation transitions by from and to status.",
		}, []string{"from", "to"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spots",
			Name:      "version_conflicts_total",
			Help:      "Compare-and-swap attempts that lost a race, by operation.",
		}, []string{"op"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spots",
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be handed to the notifier, by kind.",
		}, []string{"kind"}),
		sweepCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spots",
			Name:      "sweep_cycles_total",
			Help:      "Completed deadline sweep cycles.",
		}),
		sweepSpots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spots",
			Name:      "sweep_spots_total",
			Help:      "Spots handled by the sweeper, by result (expired, reminded, failed).",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spots",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.transitions, m.conflicts, m.notifyFailed, m.sweepCycles, m.sweepSpots, m.sweepDuration)
	return m
}

// Transition counts one committed transition.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Conflict counts one lost compare-and-swap.
func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

// NotificationFailed counts one undelivered notification.
func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(kind).Inc()
}

// SweepCycle records the totals of a finished sweep.
func (m *Metrics) SweepCycle(took time.Duration, expired, reminded, failed int) {
	if m == nil {
		return
	}
	m.sweepCycles.Inc()
	m.sweepDuration.Observe(took.Seconds())
	m.sweepSpots.WithLabelValues("expired").Add(float64(expired))
	m.sweepSpots.WithLabelValues("reminded").Add(float64(reminded))
	m.sweepSpots.WithLabelValues("failed").Add(float64(failed))
}
