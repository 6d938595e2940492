// Package collab provides HTTP-backed implementations of the
// platform.SummarizerDriver and platform.EmbedderDriver capabilities, for
// the configured SUMMARIZER_ENDPOINT / EMBEDDINGS_ENDPOINT external
// collaborators spec.md's Non-goals name as out of scope to implement
// in-process, but that the core still depends on through the narrow
// platform interfaces. Grounded on the teacher's infrastructure/httputil
// client helpers and infrastructure/resilience circuit breaker/retry.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/r3e-network/agent-governance/infrastructure/httputil"
	"github.com/r3e-network/agent-governance/infrastructure/resilience"
)

// HTTPSummarizer calls an external text-summarization endpoint over HTTP,
// guarded by a circuit breaker and bounded retry.
type HTTPSummarizer struct {
	client  *http.Client
	baseURL string
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewHTTPSummarizer builds a summarizer against baseURL, POSTing
// {"text": ...} and reading the "summary" field of the JSON response.
func NewHTTPSummarizer(baseURL string, timeout time.Duration) (*HTTPSummarizer, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: baseURL, Timeout: timeout},
		httputil.DefaultClientDefaults(),
	)
	if err != nil {
		return nil, fmt.Errorf("build summarizer client: %w", err)
	}
	return &HTTPSummarizer{
		client:  client,
		baseURL: normalized,
		breaker: resilience.New(resilience.DefaultConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}, nil
}

func (h *HTTPSummarizer) Name() string                   { return "http-summarizer" }
func (h *HTTPSummarizer) Start(ctx context.Context) error { return nil }
func (h *HTTPSummarizer) Stop(ctx context.Context) error  { return nil }

func (h *HTTPSummarizer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Summarize posts text to the endpoint and returns its condensed form;
// every call runs through the circuit breaker with bounded retry.
func (h *HTTPSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	var summary string
	err := h.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, h.retry, func() error {
			s, err := h.summarizeOnce(ctx, text)
			if err != nil {
				return err
			}
			summary = s
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}

func (h *HTTPSummarizer) summarizeOnce(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer endpoint returned %d", resp.StatusCode)
	}

	var decoded struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode summarizer response: %w", err)
	}
	if decoded.Summary == "" {
		return "", fmt.Errorf("summarizer response missing summary field")
	}
	return decoded.Summary, nil
}
