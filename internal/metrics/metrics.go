// Package metrics exposes Prometheus instrumentation for the dashboard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the dashboard's Prometheus metrics on a
// dedicated registry so tests can build isolated instances.
type Collector struct {
	registry *prometheus.Registry

	uploads         prometheus.Counter
	rowsParsed      prometheus.Counter
	rowsSkipped     prometheus.Counter
	analyses        prometheus.Counter
	analyzeDuration prometheus.Histogram
	narrativeReqs   *prometheus.CounterVec
	alertsPublished prometheus.Counter
	activeSessions  prometheus.Gauge
}

// New creates a Collector with all metrics registered.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of CSV uploads accepted",
		}),
		rowsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      "Total number of transaction rows parsed successfully",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Total number of rows skipped for parse failures",
		}),
		analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of KPI aggregations performed",
		}),
		analyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_duration_seconds",
			Help:      "Time spent filtering and aggregating one snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		narrativeReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_requests_total",
			Help:      "Narrative generation attempts by outcome",
		}, []string{"outcome"}),
		alertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Spotlight alert messages published to AMQP",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Analysis sessions currently held in memory",
		}),
	}

	c.registry.MustRegister(
		c.uploads, c.rowsParsed, c.rowsSkipped,
		c.analyses, c.analyzeDuration,
		c.narrativeReqs, c.alertsPublished, c.activeSessions,
	)
	return c
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordUpload(rows, skipped int) {
	c.uploads.Inc()
	c.rowsParsed.Add(float64(rows))
	c.rowsSkipped.Add(float64(skipped))
}

func (c *Collector) RecordAnalysis(d time.Duration) {
	c.analyses.Inc()
	c.analyzeDuration.Observe(d.Seconds())
}

// RecordNarrative counts one generation attempt; outcome is one of
// "ok", "error", "disabled", "stale".
func (c *Collector) RecordNarrative(outcome string) {
	c.narrativeReqs.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAlertPublished() {
	c.alertsPublished.Inc()
}

func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}
