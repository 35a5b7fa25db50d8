package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Classifier answers the uncertain-band classification prompt.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) ClassifyDocument(ctx context.Context, prompt string) (domain.LLMClassification, error) {
	resp, err := c.client.generateJSON(ctx, "classify", prompt)
	if err != nil {
		return domain.LLMClassification{}, err
	}

	var answer classificationAnswer
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Response)), &answer); err != nil {
		return domain.LLMClassification{}, domain.WrapError(domain.ErrPermanent, "ollama classify", fmt.Errorf("parse classification json: %w", err))
	}
	confidence, err := parseConfidence(answer.Confidence)
	if err != nil {
		return domain.LLMClassification{}, domain.WrapError(domain.ErrPermanent, "ollama classify", err)
	}
	return domain.LLMClassification{
		DocumentType: answer.DocumentType,
		Confidence:   confidence,
		Reasoning:    answer.Reasoning,
	}, nil
}

type classificationAnswer struct {
	DocumentType string          `json:"document_type"`
	Confidence   json.RawMessage `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
}

// parseConfidence accepts a JSON number or a numeric string. Absent or null
// yields nil.
func parseConfidence(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err == nil {
		return &value, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("confidence is neither number nor string: %s", raw)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil, fmt.Errorf("parse confidence %q: %w", text, err)
	}
	return &value, nil
}
