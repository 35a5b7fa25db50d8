package usecase

import "github.com/kirillkom/docflow/internal/core/domain"

// PipelineObserver receives domain outcomes for metrics.
type PipelineObserver interface {
	ObserveClassification(result domain.ClassificationResult)
	ObserveValidation(status domain.ValidationStatus)
	ObserveExport(status domain.ExportStatus)
}

type noopObserver struct{}

func (noopObserver) ObserveClassification(domain.ClassificationResult) {}
func (noopObserver) ObserveValidation(domain.ValidationStatus)         {}
func (noopObserver) ObserveExport(domain.ExportStatus)                 {}

func observerOrNoop(o PipelineObserver) PipelineObserver {
	if o == nil {
		return noopObserver{}
	}
	return o
}
