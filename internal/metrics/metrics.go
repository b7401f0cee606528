package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Gabelle service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Token resolution metrics.
	ResolutionsTotal *prometheus.CounterVec

	// OCR upstream metrics.
	OCRRequestsTotal    *prometheus.CounterVec
	OCRRequestDuration  prometheus.Histogram
	OCRErrorsTotal      *prometheus.CounterVec
	OCRDocumentBytes    prometheus.Histogram

	// Usage recorder metrics.
	RecorderQueueDepth    prometheus.Gauge
	RecorderFlushesTotal  *prometheus.CounterVec
	RecorderRecordsTotal  prometheus.Counter
	RecorderSkippedTotal  prometheus.Counter

	// Rate limiting metrics.
	RateLimitRejectionsTotal prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gabelle_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gabelle_http_request_size_bytes",
			Help:    "HTTP request size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gabelle_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_token_resolutions_total",
			Help: "Total number of purchase token resolutions by outcome.",
		}, []string{"outcome"}),

		OCRRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_ocr_requests_total",
			Help: "Total number of OCR upstream requests by result.",
		}, []string{"result"}),

		OCRRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gabelle_ocr_request_duration_seconds",
			Help:    "OCR upstream request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		OCRErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_ocr_errors_total",
			Help: "Total number of OCR upstream errors by stage.",
		}, []string{"stage"}),

		OCRDocumentBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gabelle_ocr_document_bytes",
			Help:    "Size of submitted documents in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		RecorderQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_recorder_queue_depth",
			Help: "Current number of buffered usage records.",
		}),

		RecorderFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_recorder_flushes_total",
			Help: "Total number of usage recorder flushes.",
		}, []string{"status"}),

		RecorderRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_recorder_records_total",
			Help: "Total number of usage records queued for persistence.",
		}),

		RecorderSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_recorder_skipped_total",
			Help: "Total number of recognitions not metered because the session context was unresolved.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_auth_failures_total",
			Help: "Total number of admin authentication failures.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	// Register all metrics.
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.ResolutionsTotal,
		m.OCRRequestsTotal,
		m.OCRRequestDuration,
		m.OCRErrorsTotal,
		m.OCRDocumentBytes,
		m.RecorderQueueDepth,
		m.RecorderFlushesTotal,
		m.RecorderRecordsTotal,
		m.RecorderSkippedTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.ServerStartTime,
	)

	// Set server start time.
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64, reqBytes, respBytes float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, fmt.Sprintf("%d", statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
	if reqBytes > 0 {
		m.HTTPRequestSize.WithLabelValues(method, pathPattern).Observe(reqBytes)
	}
	if respBytes > 0 {
		m.HTTPResponseSize.WithLabelValues(method, pathPattern).Observe(respBytes)
	}
}

// IncResolution increments the token resolution counter for the given outcome.
func (m *Metrics) IncResolution(outcome string) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// IncOCRRequest increments the OCR request counter for the given result.
func (m *Metrics) IncOCRRequest(result string) {
	m.OCRRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveOCRDuration records the duration of one OCR upstream request.
func (m *Metrics) ObserveOCRDuration(seconds float64) {
	m.OCRRequestDuration.Observe(seconds)
}

// IncOCRError increments the OCR error counter for the given stage.
func (m *Metrics) IncOCRError(stage string) {
	m.OCRErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveDocumentSize records the size of one submitted document.
func (m *Metrics) ObserveDocumentSize(bytes float64) {
	m.OCRDocumentBytes.Observe(bytes)
}

// IncRecordsQueued increments the queued usage record counter.
func (m *Metrics) IncRecordsQueued() {
	m.RecorderRecordsTotal.Inc()
}

// IncRecordsSkipped increments the skipped recognition counter.
func (m *Metrics) IncRecordsSkipped() {
	m.RecorderSkippedTotal.Inc()
}

// IncFlush increments the recorder flush counter for the given status.
func (m *Metrics) IncFlush(status string) {
	m.RecorderFlushesTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth sets the recorder queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.RecorderQueueDepth.Set(float64(n))
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncAuthFailure increments the admin auth failure counter.
func (m *Metrics) IncAuthFailure() {
	m.AuthFailuresTotal.Inc()
}
