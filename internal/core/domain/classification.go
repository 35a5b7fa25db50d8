package domain

import (
	"fmt"
	"math"
)

type ClassificationMethod string

const (
	MethodKeywordScoring          ClassificationMethod = "keyword_scoring"
	MethodKeywordScoringUncertain ClassificationMethod = "keyword_scoring_uncertain"
	MethodLLMFallback             ClassificationMethod = "llm_fallback"
	MethodKeywordScoringLLMFailed ClassificationMethod = "keyword_scoring_llm_failed"
	MethodNoMatch                 ClassificationMethod = "no_match"
)

const (
	ConfidentThreshold = 0.6
	UncertainThreshold = 0.3
)

// ClassificationResult is a value object; construct it with NewClassificationResult.
type ClassificationResult struct {
	DocumentType       DocumentType             `json:"document_type"`
	Confidence         float64                  `json:"confidence"`
	Method             ClassificationMethod     `json:"method"`
	RunnerUpType       *DocumentType            `json:"runner_up_type,omitempty"`
	RunnerUpConfidence float64                  `json:"runner_up_confidence"`
	AllScores          map[DocumentType]float64 `json:"all_scores,omitempty"`
}

func NewClassificationResult(
	docType DocumentType,
	confidence float64,
	method ClassificationMethod,
	runnerUp *DocumentType,
	runnerUpConfidence float64,
	allScores map[DocumentType]float64,
) (ClassificationResult, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return ClassificationResult{}, WrapError(
			ErrInvalidInput,
			"new classification result",
			fmt.Errorf("confidence %v outside [0,1]", confidence),
		)
	}
	if allScores == nil {
		allScores = map[DocumentType]float64{}
	}
	return ClassificationResult{
		DocumentType:       docType,
		Confidence:         confidence,
		Method:             method,
		RunnerUpType:       runnerUp,
		RunnerUpConfidence: runnerUpConfidence,
		AllScores:          allScores,
	}, nil
}

// MustClassificationResult panics on an out-of-range confidence.
func MustClassificationResult(
	docType DocumentType,
	confidence float64,
	method ClassificationMethod,
	runnerUp *DocumentType,
	runnerUpConfidence float64,
	allScores map[DocumentType]float64,
) ClassificationResult {
	r, err := NewClassificationResult(docType, confidence, method, runnerUp, runnerUpConfidence, allScores)
	if err != nil {
		panic(err)
	}
	return r
}

func (r ClassificationResult) IsConfident() bool {
	return r.Confidence >= ConfidentThreshold
}

func (r ClassificationResult) NeedsReview() bool {
	return r.Confidence >= UncertainThreshold && r.Confidence < ConfidentThreshold
}

// LLMClassification is the parsed answer of the fallback classifier. A nil
// Confidence means the model omitted it.
type LLMClassification struct {
	DocumentType string   `json:"document_type"`
	Confidence   *float64 `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
}
