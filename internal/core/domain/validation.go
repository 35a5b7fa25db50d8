package domain

import "time"

type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "PASSED"
	ValidationFailed  ValidationStatus = "FAILED"
	ValidationWarning ValidationStatus = "WARNING"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type ValidationError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

type ValidationResult struct {
	ID               string            `json:"id"`
	ExtractionID     string            `json:"extraction_id"`
	ValidationRules  map[string]any    `json:"validation_rules"`
	ValidationStatus ValidationStatus  `json:"validation_status"`
	ValidationErrors []ValidationError `json:"validation_errors"`
	ValidatedAt      time.Time         `json:"validated_at"`
}

func (r *ValidationResult) HasErrors() bool {
	return r.ValidationStatus == ValidationFailed
}

func (r *ValidationResult) HasWarnings() bool {
	return r.ValidationStatus == ValidationWarning
}
