package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusExtracted  DocumentStatus = "EXTRACTED"
	StatusValidated  DocumentStatus = "VALIDATED"
	StatusReviewed   DocumentStatus = "REVIEWED"
	StatusExported   DocumentStatus = "EXPORTED"
	StatusFailed     DocumentStatus = "FAILED"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusExtracted, StatusValidated,
		StatusReviewed, StatusExported, StatusFailed:
		return true
	default:
		return false
	}
}

type DocumentType string

const (
	TypeCMR                       DocumentType = "CMR"
	TypeInvoice                   DocumentType = "INVOICE"
	TypeDeliveryNote              DocumentType = "DELIVERY_NOTE"
	TypeBillOfLading              DocumentType = "BILL_OF_LADING"
	TypeAirWaybill                DocumentType = "AIR_WAYBILL"
	TypeSeaWaybill                DocumentType = "SEA_WAYBILL"
	TypePackingList               DocumentType = "PACKING_LIST"
	TypeCustomsDeclaration        DocumentType = "CUSTOMS_DECLARATION"
	TypeCertificateOfOrigin       DocumentType = "CERTIFICATE_OF_ORIGIN"
	TypeDangerousGoodsDeclaration DocumentType = "DANGEROUS_GOODS_DECLARATION"
	TypeFreightBill               DocumentType = "FREIGHT_BILL"
	TypeUnknown                   DocumentType = "UNKNOWN"
)

// SupportedDocumentTypes lists every classifiable type in a stable order. UNKNOWN is
// the absence of a classification and is not part of the list.
var SupportedDocumentTypes = []DocumentType{
	TypeCMR,
	TypeInvoice,
	TypeDeliveryNote,
	TypeBillOfLading,
	TypeAirWaybill,
	TypeSeaWaybill,
	TypePackingList,
	TypeCustomsDeclaration,
	TypeCertificateOfOrigin,
	TypeDangerousGoodsDeclaration,
	TypeFreightBill,
}

// ParseDocumentType maps free-form type names ("bill of lading", "Invoice") onto the
// enum. Unrecognised names map to UNKNOWN with ok=false.
func ParseDocumentType(raw string) (DocumentType, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if normalized == string(TypeUnknown) {
		return TypeUnknown, true
	}
	for _, t := range SupportedDocumentTypes {
		if string(t) == normalized {
			return t, true
		}
	}
	return TypeUnknown, false
}

type Document struct {
	ID               string         `json:"id"`
	OriginalFilename string         `json:"original_filename"`
	FileType         string         `json:"file_type"`
	FileSize         int64          `json:"file_size"`
	StoragePath      string         `json:"storage_path"`
	UploadedBy       string         `json:"uploaded_by"`
	Status           DocumentStatus `json:"status"`
	DocumentType     DocumentType   `json:"document_type"`
	Version          int            `json:"version"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Apply moves the document through the lifecycle, stamping UpdatedAt on success.
func (d *Document) Apply(event LifecycleEvent, now time.Time) error {
	next, err := NextStatus(d.Status, event)
	if err != nil {
		return err
	}
	d.Status = next
	d.UpdatedAt = now
	return nil
}

// Classify records the detected type; an empty type is stored as UNKNOWN.
func (d *Document) Classify(docType DocumentType, now time.Time) {
	if docType == "" {
		docType = TypeUnknown
	}
	d.DocumentType = docType
	d.UpdatedAt = now
}

func (d *Document) IncrementVersion(now time.Time) {
	d.Version++
	d.UpdatedAt = now
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Status DocumentStatus
	Offset int
	Limit  int
}

type DocumentPage struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Offset    int        `json:"offset"`
	Limit     int        `json:"limit"`
}

// ExtractionJob is the unit of background work queued after upload or reprocess.
type ExtractionJob struct {
	DocumentID  string    `json:"document_id"`
	Reprocess   bool      `json:"reprocess"`
	RequestedBy string    `json:"requested_by,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
