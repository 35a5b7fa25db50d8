package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

// Engine posts document bytes to an OCR service such as a Tesseract sidecar.
// The service answers with the recognised text and word blocks whose confidence
// is on the 0..100 scale.
type Engine struct {
	endpoint   string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(endpoint string, options Options) *Engine {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Engine{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type ocrResponse struct {
	Text   string     `json:"text"`
	Blocks []ocrBlock `json:"blocks"`
}

type ocrBlock struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"conf"`
	BBox       [4]float64 `json:"bbox"`
	Page       int        `json:"page"`
}

func (e *Engine) ExtractText(ctx context.Context, data []byte, fileType string) (domain.OCRResult, error) {
	var out ocrResponse
	err := resilience.Run(ctx, e.executor, "ocr.extract", func(ctx context.Context) error {
		out = ocrResponse{}
		return e.post(ctx, data, fileType, &out)
	}, resilience.HTTPClassifier)
	if err != nil {
		return domain.OCRResult{}, err
	}

	result := domain.OCRResult{Text: strings.TrimSpace(out.Text)}
	for _, b := range out.Blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		result.Layout = append(result.Layout, domain.LayoutBlock{
			Text:        b.Text,
			Confidence:  clampConfidence(b.Confidence / 100),
			BoundingBox: b.BBox,
			Page:        b.Page,
		})
	}
	return result, nil
}

func (e *Engine) post(ctx context.Context, data []byte, fileType string, out *ocrResponse) error {
	target := e.endpoint + "/ocr?file_type=" + url.QueryEscape(strings.ToLower(fileType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("ocr service", resp, time.Now())
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrPermanent, "ocr decode", err)
	}
	return nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
