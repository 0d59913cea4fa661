package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	stageDuration         *prometheus.HistogramVec
	runsTotal             *prometheus.CounterVec
	windowsTotal          *prometheus.CounterVec
	chunksTotal           *prometheus.CounterVec
	extraPassesTotal      prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recap_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_upstream_requests_total",
				Help: "Total upstream OpenAI-compatible API requests.",
			},
			[]string{"endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recap_upstream_request_duration_seconds",
				Help:    "Upstream request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recap_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage", "outcome"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_runs_total",
				Help: "Total pipeline runs by outcome.",
			},
			[]string{"outcome"},
		),
		windowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_transcription_windows_total",
				Help: "Transcription windows by final status.",
			},
			[]string{"status"},
		),
		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_summary_chunks_total",
				Help: "Summarized transcript chunks by outcome. fallback means the extractive summary was used.",
			},
			[]string{"status"},
		),
		extraPassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recap_summary_extra_passes_total",
				Help: "Number of merged summaries that needed another summarization pass.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.stageDuration,
		m.runsTotal,
		m.windowsTotal,
		m.chunksTotal,
		m.extraPassesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstream(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveStage(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveWindows(ok, failed, silent int) {
	if m == nil {
		return
	}
	m.windowsTotal.WithLabelValues("ok").Add(float64(ok))
	m.windowsTotal.WithLabelValues("failed").Add(float64(failed))
	m.windowsTotal.WithLabelValues("silent").Add(float64(silent))
}

func (m *Metrics) ObserveChunks(ok, fallback int, extraPass bool) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues("ok").Add(float64(ok))
	m.chunksTotal.WithLabelValues("fallback").Add(float64(fallback))
	if extraPass {
		m.extraPassesTotal.Inc()
	}
}
