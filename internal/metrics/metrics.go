// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeParse     = "parse_error"
	OutcomeTransport = "transport_error"
)

// Metrics groups the watcher's collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	Ticks         prometheus.Counter
	TickDuration  prometheus.Histogram
	Fetches       *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	DeliveryFails *prometheus.CounterVec
	Watched       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Name:      "poll_ticks_total",
			Help:      "Completed poller ticks.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seatwatch",
			Name:      "poll_tick_duration_seconds",
			Help:      "Wall time of a poller tick, fetch and apply phases included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Name:      "fetches_total",
			Help:      "Course refreshes by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Name:      "notifications_total",
			Help:      "Notifications emitted by kind.",
		}, []string{"kind"}),
		DeliveryFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Name:      "delivery_failures_total",
			Help:      "Notification deliveries that failed, by sink.",
		}, []string{"sink"}),
		Watched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seatwatch",
			Name:      "watched_courses",
			Help:      "Courses currently on at least one watchlist.",
		}),
	}
	reg.MustRegister(m.Ticks, m.TickDuration, m.Fetches, m.Notifications, m.DeliveryFails, m.Watched)
	return m
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(seconds float64, watched int) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(seconds)
	m.Watched.Set(float64(watched))
}

// ObserveFetch records one refresh outcome.
func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

// ObserveNotification records one emitted notification.
func (m *Metrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
}

// ObserveDeliveryFailure records a sink failing to deliver.
func (m *Metrics) ObserveDeliveryFailure(sink string) {
	if m == nil {
		return
	}
	m.DeliveryFails.WithLabelValues(sink).Inc()
}

// SetWatched updates the watched course gauge.
func (m *Metrics) SetWatched(n int) {
	if m == nil {
		return
	}
	m.Watched.Set(float64(n))
}
