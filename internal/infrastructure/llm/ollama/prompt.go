package ollama

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const extractionTextLimit = 4000

func buildExtractionPrompt(text, docType string, schema domain.Schema) string {
	if runes := []rune(text); len(runes) > extractionTextLimit {
		text = string(runes[:extractionTextLimit])
	}

	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	schemaJSON, err := json.MarshalIndent(schema.JSONSchema(), "", "  ")
	if err != nil {
		schemaJSON = []byte("{}")
	}

	return fmt.Sprintf(`You are a document extraction assistant. Extract structured data from the following %s document.

Document Text:
%s

Required Fields to Extract:
%s

Expected JSON Schema:
%s

Instructions:
1. Extract all available fields from the document text
2. For missing fields, use null
3. Return a JSON object with this exact structure:
{
  "data": {
    "field1": "extracted_value",
    "field2": "extracted_value",
    ...
  },
  "confidence": {
    "field1": 0.95,
    "field2": 0.90,
    ...
  }
}

Return ONLY valid JSON, no other text. Start with { and end with }.

JSON:`, docType, text, strings.Join(fields, ", "), schemaJSON)
}
