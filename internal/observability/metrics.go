// Package observability exposes Prometheus metrics for both services.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the shared metric set. Both services instantiate their own
// copy under their own namespace; label vectors disambiguate the rest.
type Metrics struct {
	ActiveSessions prometheus.Gauge

	SessionEvents   *prometheus.CounterVec // label: event (created, ws_connected, idle_timeout, busy_rejected, ...)
	WSMessages      *prometheus.CounterVec // labels: direction, type
	WSWriteErrors   *prometheus.CounterVec // label: reason
	QueueShed       *prometheus.CounterVec // label: reason (drop_guard_q, qbytes_hard_cap)
	ParseErrors     *prometheus.CounterVec // label: stage (ingress, protocol)
	PatchesEmitted  prometheus.Counter
	StableEmitted   prometheus.Counter
	RewritesIgnored *prometheus.CounterVec // label: reason (rollback, rate, pending)
	CommitsEmitted  prometheus.Counter
	DraftsEmitted   *prometheus.CounterVec // label: outcome (sent, cleared, dropped_stale, dropped_garbage)
	MTErrors        *prometheus.CounterVec // label: kind (commit, draft)

	FeederLagMS     prometheus.Histogram
	E2ELatencyMS    prometheus.Histogram
	CommitBatchSize prometheus.Histogram
	QueueDepth      prometheus.Gauge
	QueueBytes      prometheus.Gauge
}

// NewMetrics builds a Metrics set registered under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of currently active sessions (0 or 1 for the STT server).",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Count of session lifecycle events by kind.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Count of websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "Count of websocket write failures by reason.",
		}, []string{"reason"}),
		QueueShed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_shed_total",
			Help:      "Count of items dropped from bounded queues by reason.",
		}, []string{"reason"}),
		ParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Count of frame/message parse errors by stage.",
		}, []string{"stage"}),
		PatchesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_emitted_total",
			Help:      "Count of stabilizer patches emitted to clients.",
		}),
		StableEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stable_snapshots_emitted_total",
			Help:      "Count of stable snapshot messages emitted to clients.",
		}),
		RewritesIgnored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_ignored_total",
			Help:      "Count of rewrite candidates ignored by reason.",
		}, []string{"reason"}),
		CommitsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_emitted_total",
			Help:      "Count of vi-commit messages emitted.",
		}),
		DraftsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_emitted_total",
			Help:      "Count of vi-draft outcomes by kind.",
		}, []string{"outcome"}),
		MTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mt_errors_total",
			Help:      "Count of translator errors by worker kind.",
		}, []string{"kind"}),
		FeederLagMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feeder_lag_ms",
			Help:      "Distribution of feeder wallclock-vs-playhead lag in milliseconds.",
			Buckets:   []float64{0, 5, 10, 20, 50, 100, 250, 500, 1000},
		}),
		E2ELatencyMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ui_e2e_latency_ms",
			Help:      "Distribution of end-to-end enqueue-to-hypothesis latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1600, 3200},
		}),
		CommitBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_batch_size",
			Help:      "Distribution of commit worker batch sizes.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current ingress queue depth in items.",
		}),
		QueueBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_bytes",
			Help:      "Current ingress queue size in bytes.",
		}),
	}
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
