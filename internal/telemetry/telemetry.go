// Package telemetry exposes Prometheus metrics for classification, training
// runs and HTTP traffic.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curator"

// Metrics owns a private registry and the collectors registered on it.
// It satisfies pipeline.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	classifications *prometheus.CounterVec
	classifyLatency prometheus.Histogram
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	recordsScored   *prometheus.CounterVec
	lastF1          *prometheus.GaugeVec
	modelVersion    prometheus.Gauge
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
}

// New creates the metric set along with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Single-item classification requests by outcome.",
		}, []string{"outcome"}),
		classifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Feature extraction plus inference latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Retrain and evaluate runs by outcome.",
		}, []string{"kind", "outcome"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_run_duration_seconds",
			Help:      "Wall time of retrain and evaluate runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
		recordsScored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_records_total",
			Help:      "Products consumed by successful runs.",
		}, []string{"kind"}),
		lastF1: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_f1_score",
			Help:      "Weighted F1 of the most recent successful run.",
		}, []string{"kind"}),
		modelVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_version",
			Help:      "Version of the serving classifier.",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "status"}),
		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Classified(outcome string, elapsed time.Duration) {
	m.classifications.WithLabelValues(outcome).Inc()
	m.classifyLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) RunCompleted(kind, outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(kind, outcome).Inc()
	m.runDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) RunScored(kind string, records int, f1 float64) {
	m.recordsScored.WithLabelValues(kind).Add(float64(records))
	m.lastF1.WithLabelValues(kind).Set(f1)
}

func (m *Metrics) ModelPublished(version int64) {
	m.modelVersion.Set(float64(version))
}

// Instrument counts and times requests by their matched mux pattern.
// Unmatched requests share the "unmatched" route label.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
