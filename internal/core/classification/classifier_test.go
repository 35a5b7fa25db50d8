package classification

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type llmClassifierFake struct {
	answer domain.LLMClassification
	err    error
	prompt string
	calls  int
}

func (f *llmClassifierFake) ClassifyDocument(_ context.Context, prompt string) (domain.LLMClassification, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return domain.LLMClassification{}, f.err
	}
	return f.answer, nil
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	store, err := DefaultProfiles()
	if err != nil {
		t.Fatalf("load default profiles: %v", err)
	}
	return NewClassifier(store)
}

func floatPtr(v float64) *float64 { return &v }

func TestClassifyEmptyInputIsUnknown(t *testing.T) {
	c := newTestClassifier(t)

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{}, nil)
	if got.DocumentType != domain.TypeUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got.DocumentType)
	}
	if got.Confidence != 0 || got.Method != domain.MethodNoMatch {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.RunnerUpType != nil {
		t.Fatalf("expected no runner-up, got %v", *got.RunnerUpType)
	}
}

func TestClassifyConfidentCMR(t *testing.T) {
	c := newTestClassifier(t)

	text := "CMR\nConsignment note\nLettre de voiture\nShipper: ACME GmbH"
	got := c.ClassifyWithConfidence(context.Background(), text, Metadata{Filename: "scan_0042.pdf"}, nil)
	if got.DocumentType != domain.TypeCMR {
		t.Fatalf("expected CMR, got %s (%v)", got.DocumentType, got.AllScores)
	}
	if got.Method != domain.MethodKeywordScoring {
		t.Fatalf("expected keyword_scoring, got %s", got.Method)
	}
	if !got.IsConfident() {
		t.Fatalf("expected confident result, got %.4f", got.Confidence)
	}
}

func TestClassifyIgnoresCase(t *testing.T) {
	c := newTestClassifier(t)

	if got := c.Classify("rechnung rechnungsnummer gesamtbetrag", Metadata{}); got != domain.TypeInvoice {
		t.Fatalf("expected INVOICE, got %s", got)
	}
}

func TestClassifyFilenameOnlyTie(t *testing.T) {
	c := newTestClassifier(t)

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "invoice_delivery.pdf"}, nil)
	if got.DocumentType != domain.TypeInvoice {
		t.Fatalf("expected INVOICE to win the tie by profile order, got %s", got.DocumentType)
	}
	if got.Confidence != 0.75 {
		t.Fatalf("expected 0.75, got %.4f", got.Confidence)
	}
	if got.RunnerUpType == nil || *got.RunnerUpType != domain.TypeDeliveryNote {
		t.Fatalf("expected DELIVERY_NOTE runner-up, got %v", got.RunnerUpType)
	}
	if got.RunnerUpConfidence != 0.75 {
		t.Fatalf("expected runner-up 0.75, got %.4f", got.RunnerUpConfidence)
	}
}

func TestClassifyUncertainWithoutFallback(t *testing.T) {
	c := newTestClassifier(t)

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "cmr-packing-swb.pdf"}, nil)
	if got.Method != domain.MethodKeywordScoringUncertain {
		t.Fatalf("expected uncertain method, got %s", got.Method)
	}
	if got.DocumentType != domain.TypeCMR || got.Confidence != 0.5 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !got.NeedsReview() {
		t.Fatalf("expected NeedsReview for %.4f", got.Confidence)
	}
	if got.RunnerUpType == nil || *got.RunnerUpType != domain.TypeSeaWaybill {
		t.Fatalf("expected SEA_WAYBILL runner-up, got %v", got.RunnerUpType)
	}
}

func TestClassifyUncertainUsesLLMFallback(t *testing.T) {
	c := newTestClassifier(t)
	llm := &llmClassifierFake{answer: domain.LLMClassification{DocumentType: "bill of lading", Confidence: floatPtr(0.99)}}

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "cmr-packing-swb.pdf"}, llm)
	if llm.calls != 1 {
		t.Fatalf("expected one fallback call, got %d", llm.calls)
	}
	if got.DocumentType != domain.TypeBillOfLading || got.Method != domain.MethodLLMFallback {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Confidence != 0.95 {
		t.Fatalf("expected confidence clamped to 0.95, got %.4f", got.Confidence)
	}
	if !strings.Contains(llm.prompt, "Top keyword-matching candidates are: CMR (0.50), SEA_WAYBILL (0.50), PACKING_LIST (0.50)") {
		t.Fatalf("prompt misses candidates:\n%s", llm.prompt)
	}
	if !strings.Contains(llm.prompt, "FREIGHT_BILL") {
		t.Fatalf("prompt misses supported types:\n%s", llm.prompt)
	}
}

func TestClassifyFallbackUnknownTypeAndDefaultConfidence(t *testing.T) {
	c := newTestClassifier(t)
	llm := &llmClassifierFake{answer: domain.LLMClassification{DocumentType: "RECEIPT"}}

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "cmr-packing-swb.pdf"}, llm)
	if got.DocumentType != domain.TypeUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got.DocumentType)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("expected default 0.5, got %.4f", got.Confidence)
	}
}

func TestClassifyFallbackFailureKeepsKeywordWinner(t *testing.T) {
	c := newTestClassifier(t)
	llm := &llmClassifierFake{err: errors.New("ollama down")}

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "cmr-packing-swb.pdf"}, llm)
	if got.Method != domain.MethodKeywordScoringLLMFailed {
		t.Fatalf("expected llm failed method, got %s", got.Method)
	}
	if got.DocumentType != domain.TypeCMR || got.Confidence != 0.5 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestClassifyFallbackNotUsedWhenConfident(t *testing.T) {
	c := newTestClassifier(t)
	llm := &llmClassifierFake{err: errors.New("must not be called")}

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "invoice_delivery.pdf"}, llm)
	if llm.calls != 0 {
		t.Fatalf("fallback called %d times", llm.calls)
	}
	if got.Method != domain.MethodKeywordScoring {
		t.Fatalf("unexpected method %s", got.Method)
	}
}

func TestClassifyBelowUncertainIsUnknown(t *testing.T) {
	c := newTestClassifier(t)
	llm := &llmClassifierFake{err: errors.New("must not be called")}

	got := c.ClassifyWithConfidence(context.Background(), "", Metadata{Filename: "CMR_PACKING_SWB_ZOLL_FRACHT_COO"}, llm)
	if got.DocumentType != domain.TypeUnknown || got.Method != domain.MethodNoMatch {
		t.Fatalf("unexpected result: %+v", got)
	}
	if llm.calls != 0 {
		t.Fatalf("fallback called %d times", llm.calls)
	}
	if len(got.AllScores) != 6 {
		t.Fatalf("expected 6 scored types, got %v", got.AllScores)
	}
	if got.AllScores[domain.TypeCMR] != 0.25 {
		t.Fatalf("expected 0.25, got %.4f", got.AllScores[domain.TypeCMR])
	}
}

func TestExclusiveKeywordBoostsOnce(t *testing.T) {
	c := newTestClassifier(t)

	scores := c.keywordScores("BILL OF LADING")
	if scores[domain.TypeBillOfLading] < 4.5 {
		t.Fatalf("expected boosted score >= 4.5, got %.4f", scores[domain.TypeBillOfLading])
	}

	scores = c.keywordScores("BILL OF LADING CONNAISSEMENT KONNOSSEMENT")
	if got := scores[domain.TypeBillOfLading]; got < 13.5 || got >= 13.5*1.5 {
		t.Fatalf("expected a single 1.5 boost over 9.0, got %.4f", got)
	}
}

func TestFuzzyContains(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name    string
		text    string
		keyword string
		want    float64
	}{
		{name: "exact", text: "TOTAL INVOICE AMOUNT", keyword: "INVOICE", want: 1},
		{name: "ocr typo", text: "XXINVOLCE", keyword: "INVOICE", want: 1 - 1.0/7},
		{name: "short keyword exact only", text: "VAX", keyword: "VAT", want: 0},
		{name: "keyword longer than text", text: "INV", keyword: "INVOICE", want: 0},
		{name: "too different", text: "XXABCDEFG", keyword: "INVOICE", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.fuzzyContains(tc.text, []rune(tc.text), tc.keyword)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %.6f, got %.6f", tc.want, got)
			}
		})
	}
}

func TestNormalizeCapsAtOne(t *testing.T) {
	c := newTestClassifier(t)

	ranked := c.normalize(map[domain.DocumentType]float64{domain.TypeInvoice: 10})
	if len(ranked) != 1 || ranked[0].score != 1 {
		t.Fatalf("expected single score capped at 1, got %+v", ranked)
	}
	if got := c.normalize(map[domain.DocumentType]float64{}); got != nil {
		t.Fatalf("expected nil for empty scores, got %+v", got)
	}
}
