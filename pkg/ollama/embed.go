// Package ollama provides Ollama-backed embedding and text-generation
// clients over the local HTTP API. Outbound calls are rate limited so a
// large ingestion batch cannot starve interactive queries.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/embed"
)

// EmbedClient implements embed.Embedder against Ollama's /api/embeddings.
type EmbedClient struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	limiter *rate.Limiter
}

// NewEmbedClient creates an embedding client. dim must match the model's
// output dimension; responses of any other length are a structural fault.
func NewEmbedClient(baseURL, model string, dim int, rps float64) *EmbedClient {
	if rps <= 0 {
		rps = 10
	}
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Dimension implements embed.Embedder.
func (c *EmbedClient) Dimension() int { return c.dim }

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed implements embed.Embedder.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := embed.CheckText(text); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, _ := json.Marshal(embedReq{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embed: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("embed", resp.StatusCode); err != nil {
		return nil, err
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(result.Embedding) != c.dim {
		return nil, &domain.StructuralError{
			Detail: fmt.Sprintf("model %s returned dimension %d, want %d", c.model, len(result.Embedding), c.dim),
		}
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch implements embed.Embedder. Ollama's embeddings endpoint is
// single-text, so the batch is issued sequentially under the rate limit.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// classifyStatus maps an HTTP status to the retryability taxonomy: 429 and
// 5xx are transient, everything else non-2xx is an input rejection.
func classifyStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: ollama %s: status %d", domain.ErrTransient, op, status)
	default:
		return fmt.Errorf("%w: ollama %s: status %d", domain.ErrEmbedding, op, status)
	}
}
