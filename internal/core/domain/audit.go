package domain

import "time"

type AuditAction string

const (
	AuditUpload   AuditAction = "UPLOAD"
	AuditExtract  AuditAction = "EXTRACT"
	AuditValidate AuditAction = "VALIDATE"
	AuditReview   AuditAction = "REVIEW"
	AuditExport   AuditAction = "EXPORT"
	AuditCorrect  AuditAction = "CORRECT"
	AuditDelete   AuditAction = "DELETE"
)

// SystemActorID attributes automated work that has no human actor.
const SystemActorID = "00000000-0000-0000-0000-000000000000"

// AuditTrail rows are append-only.
type AuditTrail struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Action      AuditAction    `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Changes     map[string]any `json:"changes"`
	PerformedAt time.Time      `json:"performed_at"`
}
