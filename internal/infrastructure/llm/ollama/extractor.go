package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const responsePreviewLimit = 200

type FieldExtractor struct {
	client *Client
}

func NewFieldExtractor(client *Client) *FieldExtractor {
	return &FieldExtractor{client: client}
}

// ExtractFields asks the model for {"data": ..., "confidence": ...}. Models that
// put the fields at the top level are accepted when the keys match the schema.
func (e *FieldExtractor) ExtractFields(ctx context.Context, text, docType string, schema domain.Schema) (domain.FieldExtractionResult, error) {
	resp, err := e.client.generateJSON(ctx, "extract", buildExtractionPrompt(text, docType, schema))
	if err != nil {
		return domain.FieldExtractionResult{}, err
	}
	if resp.Response == "" {
		return domain.FieldExtractionResult{}, domain.WrapError(domain.ErrPermanent, "ollama extract", errors.New("empty response"))
	}

	cleaned := extractJSONObject(resp.Response)
	var parsed struct {
		Data       map[string]any     `json:"data"`
		Confidence map[string]float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return domain.FieldExtractionResult{}, domain.WrapError(domain.ErrPermanent, "ollama extract",
			fmt.Errorf("invalid json (preview %q): %w", preview(cleaned), err))
	}

	data := parsed.Data
	if len(data) == 0 {
		data = rootLevelFields(cleaned, schema)
	}
	if data == nil {
		data = map[string]any{}
	}
	scores := parsed.Confidence
	if scores == nil {
		scores = map[string]float64{}
	}

	return domain.FieldExtractionResult{
		StructuredData:   data,
		ConfidenceScores: scores,
		Metadata: map[string]any{
			"model":                e.client.genModel,
			"provider":             "ollama",
			"total_duration":       resp.TotalDuration,
			"raw_response_preview": preview(cleaned),
		},
	}, nil
}

func rootLevelFields(raw string, schema domain.Schema) map[string]any {
	var root map[string]any
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil
	}
	out := map[string]any{}
	for name := range schema {
		if v, ok := root[name]; ok {
			out[name] = v
		}
	}
	return out
}

func preview(s string) string {
	if runes := []rune(s); len(runes) > responsePreviewLimit {
		return string(runes[:responsePreviewLimit])
	}
	return s
}
