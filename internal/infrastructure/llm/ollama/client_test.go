package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

func generateServer(t *testing.T, response string, capture *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if capture != nil {
			*capture = payload
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": response, "total_duration": 1234})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestExtractFieldsParsesDataAndConfidence(t *testing.T) {
	var captured map[string]any
	server := generateServer(t, "```json\n{\"data\":{\"shipper_name\":\"ACME\",\"weight\":null},\"confidence\":{\"shipper_name\":0.9}}\n```", &captured)

	extractor := NewFieldExtractor(New(server.URL, "llama3.1"))
	result, err := extractor.ExtractFields(context.Background(), "CMR text", "CMR", domain.ExtractionSchema(domain.TypeCMR))
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if result.StructuredData["shipper_name"] != "ACME" || result.ConfidenceScores["shipper_name"] != 0.9 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Metadata["model"] != "llama3.1" || result.Metadata["provider"] != "ollama" {
		t.Fatalf("unexpected metadata: %v", result.Metadata)
	}
	if captured["format"] != "json" || captured["stream"] != false {
		t.Fatalf("unexpected request: %v", captured)
	}
	prompt, _ := captured["prompt"].(string)
	if !strings.Contains(prompt, "CMR document") || !strings.Contains(prompt, "consignee_name, date_of_consignment") {
		t.Fatalf("prompt misses type or sorted fields:\n%s", prompt)
	}
}

func TestExtractFieldsAcceptsRootLevelFields(t *testing.T) {
	server := generateServer(t, `{"invoice_number":"INV-1","unrelated":"x"}`, nil)

	extractor := NewFieldExtractor(New(server.URL, "m"))
	result, err := extractor.ExtractFields(context.Background(), "text", "INVOICE", domain.ExtractionSchema(domain.TypeInvoice))
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if result.StructuredData["invoice_number"] != "INV-1" {
		t.Fatalf("expected root-level field, got %v", result.StructuredData)
	}
	if _, ok := result.StructuredData["unrelated"]; ok {
		t.Fatalf("keys outside the schema must be dropped")
	}
}

func TestExtractFieldsRejectsInvalidJSON(t *testing.T) {
	server := generateServer(t, "I could not find any fields", nil)

	_, err := NewFieldExtractor(New(server.URL, "m")).ExtractFields(context.Background(), "t", "CMR", domain.Schema{})
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestClassifyDocumentParsesAnswer(t *testing.T) {
	server := generateServer(t, `{"document_type":"SEA_WAYBILL","confidence":0.8,"reasoning":"sea transport"}`, nil)

	answer, err := NewClassifier(New(server.URL, "m")).ClassifyDocument(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("ClassifyDocument() error = %v", err)
	}
	if answer.DocumentType != "SEA_WAYBILL" || answer.Confidence == nil || *answer.Confidence != 0.8 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestGenerateRetriesBadGatewayAndKeepsBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	client := NewWithOptions(server.URL, "m", Options{ResilienceExecutor: exec})
	_, err := NewClassifier(client).ClassifyDocument(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, BreakerEnabled: false})
	_, err := NewClassifier(NewWithOptions(server.URL, "m", Options{ResilienceExecutor: exec})).ClassifyDocument(context.Background(), "p")
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClassifyDocumentConfidenceForms(t *testing.T) {
	cases := []struct {
		name    string
		answer  string
		want    *float64
		wantErr bool
	}{
		{name: "numeric string", answer: `{"document_type":"INVOICE","confidence":" 0.9 "}`, want: ptr(0.9)},
		{name: "missing", answer: `{"document_type":"INVOICE"}`},
		{name: "null", answer: `{"document_type":"INVOICE","confidence":null}`},
		{name: "garbage string", answer: `{"document_type":"INVOICE","confidence":"high"}`, wantErr: true},
		{name: "object", answer: `{"document_type":"INVOICE","confidence":{"v":1}}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := generateServer(t, tc.answer, nil)
			answer, err := NewClassifier(New(server.URL, "m")).ClassifyDocument(context.Background(), "prompt")
			if tc.wantErr {
				if !errors.Is(err, domain.ErrPermanent) {
					t.Fatalf("expected permanent error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClassifyDocument() error = %v", err)
			}
			switch {
			case tc.want == nil && answer.Confidence != nil:
				t.Fatalf("expected no confidence, got %v", *answer.Confidence)
			case tc.want != nil && (answer.Confidence == nil || *answer.Confidence != *tc.want):
				t.Fatalf("expected %v, got %+v", *tc.want, answer.Confidence)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }
