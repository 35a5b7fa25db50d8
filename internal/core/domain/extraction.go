package domain

import "time"

type ExtractionMethod string

const (
	ExtractionOCROnly ExtractionMethod = "OCR_ONLY"
	ExtractionOCRLLM  ExtractionMethod = "OCR_LLM"
	ExtractionManual  ExtractionMethod = "MANUAL"
)

type Extraction struct {
	ID                 string             `json:"id"`
	DocumentID         string             `json:"document_id"`
	ExtractionMethod   ExtractionMethod   `json:"extraction_method"`
	RawText            string             `json:"raw_text"`
	StructuredData     map[string]any     `json:"structured_data"`
	ConfidenceScores   map[string]float64 `json:"confidence_scores"`
	ExtractionMetadata map[string]any     `json:"extraction_metadata"`
	ExtractedAt        time.Time          `json:"extracted_at"`
}

func (e *Extraction) FieldConfidence(field string) float64 {
	return e.ConfidenceScores[field]
}

// AverageConfidence is the mean of the present scores, 0 when there are none.
func (e *Extraction) AverageConfidence() float64 {
	if len(e.ConfidenceScores) == 0 {
		return 0
	}
	var sum float64
	for _, score := range e.ConfidenceScores {
		sum += score
	}
	return sum / float64(len(e.ConfidenceScores))
}

// LayoutBlock is a best-effort positioned text fragment reported by OCR engines.
type LayoutBlock struct {
	Text        string     `json:"text"`
	Confidence  float64    `json:"confidence"`
	BoundingBox [4]float64 `json:"bounding_box"`
	Page        int        `json:"page"`
}

type OCRResult struct {
	Text   string        `json:"text"`
	Layout []LayoutBlock `json:"layout,omitempty"`
}

type FieldExtractionResult struct {
	StructuredData   map[string]any     `json:"structured_data"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Metadata         map[string]any     `json:"metadata"`
}

// FieldSpec describes one extractable field in a flat per-type schema.
type FieldSpec struct {
	Type string `json:"type"`
}

type Schema map[string]FieldSpec

var extractionSchemas = map[DocumentType]Schema{
	TypeCMR: {
		"shipper_name":         {Type: "string"},
		"shipper_address":      {Type: "string"},
		"consignee_name":       {Type: "string"},
		"consignee_address":    {Type: "string"},
		"date_of_consignment":  {Type: "string"},
		"place_of_consignment": {Type: "string"},
		"reference_number":     {Type: "string"},
		"goods_description":    {Type: "string"},
		"quantity":             {Type: "string"},
		"weight":               {Type: "string"},
	},
	TypeInvoice: {
		"invoice_number": {Type: "string"},
		"invoice_date":   {Type: "string"},
		"seller_name":    {Type: "string"},
		"buyer_name":     {Type: "string"},
		"total_amount":   {Type: "string"},
		"currency":       {Type: "string"},
		"tax_amount":     {Type: "string"},
		"items":          {Type: "array"},
	},
	TypeDeliveryNote: {
		"delivery_note_number": {Type: "string"},
		"delivery_date":        {Type: "string"},
		"recipient_name":       {Type: "string"},
		"recipient_address":    {Type: "string"},
		"items":                {Type: "array"},
	},
}

// ExtractionSchema returns the field schema for docType; types without one get an
// empty schema so the extractor still receives a well-formed object.
func ExtractionSchema(docType DocumentType) Schema {
	if schema, ok := extractionSchemas[docType]; ok {
		return schema
	}
	return Schema{}
}

// JSONSchema renders the flat schema as a JSON-schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	for name, spec := range s {
		props[name] = map[string]any{"type": spec.Type}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}
