package domain

import "fmt"

// LifecycleEvent is an action that may move a document to another status.
type LifecycleEvent string

const (
	EventBeginExtraction     LifecycleEvent = "begin_extraction"
	EventReprocess           LifecycleEvent = "reprocess"
	EventExtractionSucceeded LifecycleEvent = "extraction_succeeded"
	EventExtractionFailed    LifecycleEvent = "extraction_failed"
	EventValidate            LifecycleEvent = "validate"
	EventReview              LifecycleEvent = "review"
	EventExport              LifecycleEvent = "export"
)

type transition struct {
	from []DocumentStatus
	to   DocumentStatus
}

// The table is fixed; EXPORTED is terminal and FAILED is only entered from PROCESSING.
var lifecycle = map[LifecycleEvent]transition{
	EventBeginExtraction: {
		from: []DocumentStatus{StatusUploaded},
		to:   StatusProcessing,
	},
	EventReprocess: {
		from: []DocumentStatus{StatusUploaded, StatusExtracted, StatusValidated, StatusReviewed, StatusFailed},
		to:   StatusProcessing,
	},
	EventExtractionSucceeded: {
		from: []DocumentStatus{StatusProcessing},
		to:   StatusExtracted,
	},
	EventExtractionFailed: {
		from: []DocumentStatus{StatusProcessing},
		to:   StatusFailed,
	},
	EventValidate: {
		from: []DocumentStatus{StatusExtracted, StatusValidated},
		to:   StatusValidated,
	},
	EventReview: {
		from: []DocumentStatus{StatusValidated, StatusReviewed},
		to:   StatusReviewed,
	},
	EventExport: {
		from: []DocumentStatus{StatusReviewed},
		to:   StatusExported,
	},
}

// NextStatus returns the status reached by applying event to current.
func NextStatus(current DocumentStatus, event LifecycleEvent) (DocumentStatus, error) {
	t, ok := lifecycle[event]
	if !ok {
		return current, fmt.Errorf("unknown lifecycle event %q: %w", event, ErrInvalidTransition)
	}
	for _, from := range t.from {
		if from == current {
			return t.to, nil
		}
	}
	return current, fmt.Errorf("cannot %s document in status %s: %w", event, current, ErrInvalidTransition)
}

// CanApply reports whether event is legal from current without mutating anything.
func CanApply(current DocumentStatus, event LifecycleEvent) bool {
	_, err := NextStatus(current, event)
	return err == nil
}
