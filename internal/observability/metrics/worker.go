package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docflow/internal/core/domain"
)

var (
	extractionBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	queueLagBuckets   = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}
)

// WorkerMetrics owns the worker registry. Every series carries the service
// label fixed at construction.
type WorkerMetrics struct {
	registry *prometheus.Registry
	pipeline *PipelineMetrics

	extractions *prometheus.CounterVec
	durations   prometheus.ObserverVec
	inFlight    prometheus.Gauge
	queueLag    prometheus.Observer
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "worker", Name: name, Help: help}
	}

	extractions := prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("extractions_total", "Extraction jobs by outcome.")),
		[]string{"service", "status"},
	)
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "extraction_duration_seconds",
		Help:      "Extraction job duration by outcome.",
		Buckets:   extractionBuckets,
	}, []string{"service", "status"})
	inFlightOpts := prometheus.GaugeOpts(opts("extractions_in_flight", "Extraction jobs currently running."))
	inFlightOpts.ConstLabels = serviceLabel
	inFlight := prometheus.NewGauge(inFlightOpts)
	queueLag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "queue_lag_seconds",
		Help:      "Time a job waited in the queue before a worker picked it up.",
		Buckets:   queueLagBuckets,
	}, []string{"service"})

	registry.MustRegister(extractions, durations, inFlight, queueLag)

	return &WorkerMetrics{
		registry:    registry,
		pipeline:    NewPipelineMetrics(service, registry),
		extractions: extractions.MustCurryWith(serviceLabel),
		durations:   durations.MustCurryWith(serviceLabel),
		inFlight:    inFlight,
		queueLag:    queueLag.With(serviceLabel),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Pipeline() *PipelineMetrics {
	return m.pipeline
}

// TrackExtraction marks one job in flight. The returned func records its
// outcome and must be called exactly once.
func (m *WorkerMetrics) TrackExtraction(enqueuedAt time.Time) func(error) {
	started := time.Now()
	if !enqueuedAt.IsZero() {
		if lag := started.Sub(enqueuedAt); lag >= 0 {
			m.queueLag.Observe(lag.Seconds())
		}
	}
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		status := extractionStatus(err)
		m.extractions.WithLabelValues(status).Inc()
		m.durations.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
}

func extractionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary_error"
	case domain.IsKind(err, domain.ErrInvalidTransition):
		return "skipped"
	default:
		return "error"
	}
}
