package exportsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

// TMSSink posts the payload as JSON to <baseURL>/<destination>.
type TMSSink struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type TMSOptions struct {
	APIKey             string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewTMSSink(baseURL string, options TMSOptions) *TMSSink {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TMSSink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     options.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (s *TMSSink) Send(ctx context.Context, destination string, payload domain.ExportPayload) error {
	destination = strings.Trim(strings.TrimSpace(destination), "/")
	if destination == "" {
		return domain.WrapError(domain.ErrInvalidInput, "tms send", errors.New("destination is required"))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal export payload: %w", err)
	}
	target := s.baseURL + "/" + url.PathEscape(destination)

	return resilience.Run(ctx, s.executor, "tms.send", func(ctx context.Context) error {
		return s.post(ctx, target, body)
	}, resilience.HTTPClassifier)
}

func (s *TMSSink) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("tms", resp, time.Now())
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
