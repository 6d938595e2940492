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

// HTTPEmbedder calls an external embeddings endpoint over HTTP, guarded by
// a circuit breaker and bounded retry. cmd/governanced builds it when
// EMBEDDINGS_ENDPOINT is set; the Knowledge Note collaborator does not call
// it and filters notes by tag or author only.
type HTTPEmbedder struct {
	client  *http.Client
	baseURL string
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewHTTPEmbedder builds an embedder against baseURL.
func NewHTTPEmbedder(baseURL string, timeout time.Duration) (*HTTPEmbedder, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: baseURL, Timeout: timeout},
		httputil.DefaultClientDefaults(),
	)
	if err != nil {
		return nil, fmt.Errorf("build embedder client: %w", err)
	}
	return &HTTPEmbedder{
		client:  client,
		baseURL: normalized,
		breaker: resilience.New(resilience.DefaultConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}, nil
}

func (h *HTTPEmbedder) Name() string                   { return "http-embedder" }
func (h *HTTPEmbedder) Start(ctx context.Context) error { return nil }
func (h *HTTPEmbedder) Stop(ctx context.Context) error  { return nil }

func (h *HTTPEmbedder) Ping(ctx context.Context) error {
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

// Embed posts text to the endpoint and returns its embedding vector.
func (h *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := h.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, h.retry, func() error {
			v, err := h.embedOnce(ctx, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

func (h *HTTPEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder endpoint returned %d", resp.StatusCode)
	}

	var decoded struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedder response: %w", err)
	}
	return decoded.Embedding, nil
}
