package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	templateLookups *prometheus.CounterVec
	uploadsTotal    *prometheus.CounterVec
	rowsIngested    prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mfg_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfg_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfg_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfg_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		templateLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfg_template_lookups_total",
				Help: "Template match attempts by outcome.",
			},
			[]string{"outcome"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfg_uploads_total",
				Help: "CSV uploads processed by status.",
			},
			[]string{"status"},
		),
		rowsIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mfg_rows_ingested_total",
				Help: "Total work-order rows ingested.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTemplateLookup counts a match attempt outcome: "hit", "miss" or
// "corrupt_skipped".
func (m *Metrics) IncrTemplateLookup(outcome string) {
	m.templateLookups.WithLabelValues(outcome).Inc()
}

// IncrUpload counts a processed upload with a status label.
func (m *Metrics) IncrUpload(status string) {
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// AddRowsIngested records inserted work-order rows.
func (m *Metrics) AddRowsIngested(n int) {
	m.rowsIngested.Add(float64(n))
}

// GetIngestSnapshot returns a snapshot of ingestion metrics suitable for the
// GET /v1/metrics/ingest endpoint.
func (m *Metrics) GetIngestSnapshot() *domain.IngestMetrics {
	hits := getCounterValue(m.templateLookups, "hit")
	misses := getCounterValue(m.templateLookups, "miss")
	uploadsOK := getCounterValue(m.uploadsTotal, "success")
	uploadsErr := getCounterValue(m.uploadsTotal, "error")
	cacheHits := getCounterValue(m.cacheHits, "analysis_config")
	cacheMisses := getCounterValue(m.cacheMisses, "analysis_config")

	totalUploads := uploadsOK + uploadsErr
	matchRate := float64(0)
	errorRate := float64(0)
	cacheHitRate := float64(0)

	if hits+misses > 0 {
		matchRate = hits / (hits + misses)
	}
	if totalUploads > 0 {
		errorRate = uploadsErr / totalUploads
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	rows := float64(0)
	pm := &dto.Metric{}
	if err := m.rowsIngested.Write(pm); err == nil && pm.Counter != nil && pm.Counter.Value != nil {
		rows = *pm.Counter.Value
	}

	return &domain.IngestMetrics{
		TotalUploads:      int64(totalUploads),
		RowsIngested:      int64(rows),
		TemplateMatchRate: matchRate,
		ErrorRate:         errorRate,
		CacheHitRate:      cacheHitRate,
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
