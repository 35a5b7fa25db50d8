package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const namespace = "docflow"

// PipelineMetrics counts domain outcomes. It satisfies usecase.PipelineObserver.
type PipelineMetrics struct {
	service string

	classificationsTotal *prometheus.CounterVec
	classificationScore  *prometheus.HistogramVec
	validationsTotal     *prometheus.CounterVec
	exportsTotal         *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registry prometheus.Registerer) *PipelineMetrics {
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classifications_total",
			Help:      "Classification results by document type and method.",
		},
		[]string{"service", "document_type", "method"},
	)
	classificationScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classification_confidence",
			Help:      "Distribution of classification confidence.",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"service", "method"},
	)
	validationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "validations_total",
			Help:      "Validation results by status.",
		},
		[]string{"service", "status"},
	)
	exportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "exports_total",
			Help:      "Export attempts by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(classificationsTotal, classificationScore, validationsTotal, exportsTotal)

	return &PipelineMetrics{
		service:              service,
		classificationsTotal: classificationsTotal,
		classificationScore:  classificationScore,
		validationsTotal:     validationsTotal,
		exportsTotal:         exportsTotal,
	}
}

func (m *PipelineMetrics) ObserveClassification(result domain.ClassificationResult) {
	m.classificationsTotal.WithLabelValues(m.service, string(result.DocumentType), string(result.Method)).Inc()
	m.classificationScore.WithLabelValues(m.service, string(result.Method)).Observe(result.Confidence)
}

func (m *PipelineMetrics) ObserveValidation(status domain.ValidationStatus) {
	m.validationsTotal.WithLabelValues(m.service, string(status)).Inc()
}

func (m *PipelineMetrics) ObserveExport(status domain.ExportStatus) {
	m.exportsTotal.WithLabelValues(m.service, string(status)).Inc()
}
