// Package metrics exposes Prometheus metrics for segmentation runs and the
// HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ipusegment"

// Metrics holds every collector of the service, registered on its own
// registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Segmentation
	JobsCreated      *prometheus.CounterVec
	JobsFinished     *prometheus.CounterVec
	ActiveJobs       prometheus.Gauge
	SegmentDuration  *prometheus.HistogramVec
	AudioDuration    prometheus.Histogram
	TracksPerRun     prometheus.Histogram
	FitEvaluations   prometheus.Histogram
	FitOutcomes      *prometheus.CounterVec
	EstimatedVolumes prometheus.Histogram

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		JobsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Total number of segmentation jobs created",
		}, []string{"mode"}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of segmentation jobs by final status",
		}, []string{"mode", "status"}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Current number of running segmentation jobs",
		}),
		SegmentDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Time spent segmenting one audio file",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"mode"}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Duration of the segmented audio",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		}),
		TracksPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tracks_per_run",
			Help:      "Number of IPUs found per segmentation",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		FitEvaluations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_evaluations",
			Help:      "Number of pipeline evaluations per fit",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FitOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fit_outcomes_total",
			Help:      "Fits by the phase they ended in",
		}, []string{"phase", "converged"}),
		EstimatedVolumes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "volume_threshold",
			Help:      "RMS threshold used by segmentations",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 12),
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordJobCreated increments the created jobs counter.
func (m *Metrics) RecordJobCreated(mode string) {
	m.JobsCreated.WithLabelValues(mode).Inc()
}

// RecordJobStarted marks a job as running.
func (m *Metrics) RecordJobStarted() {
	m.ActiveJobs.Inc()
}

// RecordJobFinished records the final status of a running job.
func (m *Metrics) RecordJobFinished(mode, status string) {
	m.ActiveJobs.Dec()
	m.JobsFinished.WithLabelValues(mode, status).Inc()
}

// RecordSegmentation records one completed segmentation.
func (m *Metrics) RecordSegmentation(mode string, elapsedSeconds, audioSeconds float64, tracks, threshold int) {
	m.SegmentDuration.WithLabelValues(mode).Observe(elapsedSeconds)
	m.AudioDuration.Observe(audioSeconds)
	m.TracksPerRun.Observe(float64(tracks))
	m.EstimatedVolumes.Observe(float64(threshold))
}

// RecordFit records the outcome of a fit.
func (m *Metrics) RecordFit(phase string, converged bool, evaluations int) {
	label := "false"
	if converged {
		label = "true"
	}
	m.FitOutcomes.WithLabelValues(phase, label).Inc()
	m.FitEvaluations.Observe(float64(evaluations))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
