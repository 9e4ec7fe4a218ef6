// Package monitoring exposes Prometheus metrics for the lifecycle manager.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	AppsRunning        prometheus.Gauge
	LaunchesTotal      *prometheus.CounterVec
	StatusChanges      *prometheus.CounterVec
	KillsTotal         prometheus.Counter
	TransitionTimeouts prometheus.Counter

	// Observer metrics
	WSConnections prometheus.Gauge
	EventsPosted  *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the collectors on reg. Tests pass a fresh registry
// so parallel packages do not collide on collector names.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sam_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sam_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AppsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sam_apps_running",
			Help: "Number of application instances in the registry",
		}),
		LaunchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sam_launches_total",
				Help: "Launch requests by outcome",
			},
			[]string{"outcome"},
		),
		StatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sam_life_status_changes_total",
				Help: "Life status transitions by target status",
			},
			[]string{"status"},
		),
		KillsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sam_kills_total",
			Help: "Forced kills issued by the transition guard",
		}),
		TransitionTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sam_transition_timeouts_total",
			Help: "Transitions that exceeded the configured deadline",
		}),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sam_ws_connections",
			Help: "Active observer WebSocket connections",
		}),
		EventsPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sam_events_posted_total",
				Help: "Observer events posted by channel",
			},
			[]string{"channel"},
		),

		Uptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sam_uptime_seconds",
			Help: "Service uptime in seconds",
		}),
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
