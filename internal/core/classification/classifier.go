package classification

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	llmPromptTextLimit    = 2000
	llmCandidateLimit     = 3
	llmDefaultConfidence  = 0.5
	llmMaxConfidence      = 0.95
	normalizationDominant = 0.5
)

// Metadata carries non-text signals used for scoring.
type Metadata struct {
	Filename string
}

type Classifier struct {
	store          *ProfileStore
	fuzzyThreshold float64
}

func NewClassifier(store *ProfileStore) *Classifier {
	return &Classifier{store: store, fuzzyThreshold: FuzzyMatchThreshold}
}

type scoredType struct {
	docType domain.DocumentType
	score   float64
}

// Classify returns only the chosen type, without LLM fallback.
func (c *Classifier) Classify(text string, meta Metadata) domain.DocumentType {
	return c.ClassifyWithConfidence(context.Background(), text, meta, nil).DocumentType
}

// ClassifyWithConfidence scores text and filename against every profile. The LLM
// fallback is consulted only in the uncertain band and never causes an error.
func (c *Classifier) ClassifyWithConfidence(
	ctx context.Context,
	text string,
	meta Metadata,
	fallback ports.LLMClassifier,
) domain.ClassificationResult {
	upper := strings.ToUpper(text)
	combined := c.keywordScores(upper)
	for docType, score := range c.filenameScores(strings.ToUpper(meta.Filename)) {
		combined[docType] += score
	}

	ranked := c.normalize(combined)
	if len(ranked) == 0 {
		return unknownResult(nil)
	}
	allScores := scoreMap(ranked)

	best := ranked[0]
	var runnerUp *domain.DocumentType
	var runnerUpConfidence float64
	if len(ranked) > 1 {
		t := ranked[1].docType
		runnerUp = &t
		runnerUpConfidence = round4(ranked[1].score)
	}

	switch {
	case best.score >= domain.ConfidentThreshold:
		return domain.MustClassificationResult(best.docType, round4(best.score), domain.MethodKeywordScoring, runnerUp, runnerUpConfidence, allScores)
	case best.score >= domain.UncertainThreshold && fallback != nil:
		return c.llmClassify(ctx, text, fallback, ranked, allScores)
	case best.score >= domain.UncertainThreshold:
		return domain.MustClassificationResult(best.docType, round4(best.score), domain.MethodKeywordScoringUncertain, runnerUp, runnerUpConfidence, allScores)
	default:
		return unknownResult(allScores)
	}
}

func (c *Classifier) keywordScores(upper string) map[domain.DocumentType]float64 {
	scores := make(map[domain.DocumentType]float64)
	if upper == "" {
		return scores
	}
	textRunes := []rune(upper)
	for _, p := range c.store.profiles {
		var total float64
		for _, kw := range p.keywords {
			if match := c.fuzzyContains(upper, textRunes, kw.text); match > 0 {
				total += kw.weight * match
			}
		}
		for _, exclusive := range p.exclusive {
			if strings.Contains(upper, exclusive) {
				total *= ExclusiveBoost
				break
			}
		}
		if total > 0 {
			scores[p.docType] = total
		}
	}
	return scores
}

func (c *Classifier) filenameScores(upperName string) map[domain.DocumentType]float64 {
	scores := make(map[domain.DocumentType]float64)
	if upperName == "" {
		return scores
	}
	for _, p := range c.store.profiles {
		for _, hint := range p.hints {
			if strings.Contains(upperName, hint) {
				scores[p.docType] += FilenameBonus
			}
		}
	}
	return scores
}

// normalize scales raw scores by share of the total and dominance over the
// leader, capped at 1. Ties keep profile order.
func (c *Classifier) normalize(raw map[domain.DocumentType]float64) []scoredType {
	var total, maxScore float64
	for _, s := range raw {
		total += s
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		return nil
	}

	ranked := make([]scoredType, 0, len(raw))
	for _, p := range c.store.profiles {
		s, ok := raw[p.docType]
		if !ok || s <= 0 {
			continue
		}
		proportion := s / total
		dominance := s / maxScore
		ranked = append(ranked, scoredType{
			docType: p.docType,
			score:   math.Min(proportion*(dominance+normalizationDominant), 1.0),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked
}

// fuzzyContains returns 1 for an exact substring, the best window similarity when
// it reaches the fuzzy threshold, or 0. Keywords shorter than 4 runes only match
// exactly.
func (c *Classifier) fuzzyContains(upper string, textRunes []rune, keyword string) float64 {
	if strings.Contains(upper, keyword) {
		return 1.0
	}
	klen := utf8.RuneCountInString(keyword)
	if klen < 4 || klen > len(textRunes) {
		return 0
	}

	step := max(1, klen/3)
	var best float64
	for i := 0; i+klen <= len(textRunes); i += step {
		ratio := similarity(keyword, string(textRunes[i:i+klen]))
		if ratio > best {
			best = ratio
			if ratio >= c.fuzzyThreshold {
				return ratio
			}
		}
	}
	return 0
}

func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func (c *Classifier) llmClassify(
	ctx context.Context,
	text string,
	fallback ports.LLMClassifier,
	ranked []scoredType,
	allScores map[domain.DocumentType]float64,
) domain.ClassificationResult {
	answer, err := fallback.ClassifyDocument(ctx, c.buildPrompt(text, ranked))
	if err != nil {
		best := ranked[0]
		return domain.MustClassificationResult(best.docType, round4(best.score), domain.MethodKeywordScoringLLMFailed, nil, 0, allScores)
	}

	docType, _ := domain.ParseDocumentType(answer.DocumentType)
	confidence := llmDefaultConfidence
	if answer.Confidence != nil && !math.IsNaN(*answer.Confidence) {
		confidence = *answer.Confidence
	}
	confidence = math.Max(0, math.Min(round4(confidence), llmMaxConfidence))
	return domain.MustClassificationResult(docType, confidence, domain.MethodLLMFallback, nil, 0, allScores)
}

func (c *Classifier) buildPrompt(text string, ranked []scoredType) string {
	candidates := make([]string, 0, llmCandidateLimit)
	for i, st := range ranked {
		if i == llmCandidateLimit {
			break
		}
		candidates = append(candidates, fmt.Sprintf("%s (%.2f)", st.docType, st.score))
	}
	types := make([]string, 0, len(c.store.profiles))
	for _, t := range c.store.Types() {
		types = append(types, string(t))
	}

	excerpt := text
	if runes := []rune(text); len(runes) > llmPromptTextLimit {
		excerpt = string(runes[:llmPromptTextLimit])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Classify this logistics document into one of these types: %s\n\n", strings.Join(types, ", "))
	fmt.Fprintf(&b, "Top keyword-matching candidates are: %s\n\n", strings.Join(candidates, ", "))
	fmt.Fprintf(&b, "Document text (first %d chars):\n%s\n\n", llmPromptTextLimit, excerpt)
	b.WriteString(`Return ONLY a JSON object: {"document_type": "TYPE_NAME", "confidence": 0.95, "reasoning": "brief explanation"}`)
	return b.String()
}

func unknownResult(allScores map[domain.DocumentType]float64) domain.ClassificationResult {
	return domain.MustClassificationResult(domain.TypeUnknown, 0, domain.MethodNoMatch, nil, 0, allScores)
}

func scoreMap(ranked []scoredType) map[domain.DocumentType]float64 {
	out := make(map[domain.DocumentType]float64, len(ranked))
	for _, st := range ranked {
		out[st.docType] = round4(st.score)
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
