package domain

import "time"

type ExportStatus string

const (
	ExportPending ExportStatus = "PENDING"
	ExportSuccess ExportStatus = "SUCCESS"
	ExportFailed  ExportStatus = "FAILED"
)

// ExportPayload is the body posted to the TMS.
type ExportPayload struct {
	DocumentID       string         `json:"document_id"`
	DocumentType     DocumentType   `json:"document_type"`
	OriginalFilename string         `json:"original_filename"`
	Data             map[string]any `json:"data"`
	ExportedAt       time.Time      `json:"exported_at"`
}

type Export struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	ExportedTo    string        `json:"exported_to"`
	ExportPayload ExportPayload `json:"export_payload"`
	ExportStatus  ExportStatus  `json:"export_status"`
	ExportedAt    *time.Time    `json:"exported_at,omitempty"`
	RetryCount    int           `json:"retry_count"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
}

func (e *Export) MarkSuccess(now time.Time) {
	e.ExportStatus = ExportSuccess
	e.ExportedAt = &now
	e.ErrorMessage = nil
}

func (e *Export) MarkFailed(message string) {
	e.ExportStatus = ExportFailed
	e.ErrorMessage = &message
	e.RetryCount++
}

// MergeCorrections overlays reviewer corrections on extracted fields without
// mutating either input.
func MergeCorrections(extracted, corrections map[string]any) map[string]any {
	merged := make(map[string]any, len(extracted)+len(corrections))
	for k, v := range extracted {
		merged[k] = v
	}
	for k, v := range corrections {
		merged[k] = v
	}
	return merged
}
