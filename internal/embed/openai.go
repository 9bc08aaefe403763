package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// OpenAIStyleConfig configures an embedding backend that speaks the
// OpenAI/Voyage request shape: {input, model, dimensions?} posted to
// <baseURL>/embeddings with Authorization: Bearer <apiKey>.
type OpenAIStyleConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// openAIStyleDims holds per-model default dimensions for backends that
// follow the OpenAI request/response shape.
var openAIStyleDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible
// /embeddings endpoint.
type OpenAIEmbedder struct {
	client *http.Client
	cfg    OpenAIStyleConfig
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder requires an API key; a missing key is a ConfigError,
// not a silent fallback.
func NewOpenAIEmbedder(cfg OpenAIStyleConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, qerrors.ConfigError("openai embedding backend requires an API key", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = openAIStyleDims[cfg.Model]
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultWarmTimeout
	}
	return &OpenAIEmbedder{client: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}, nil
}

type embeddingsRequest struct {
	Input      any    `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) post(ctx context.Context, input any) (*embeddingsResponse, error) {
	body, err := json.Marshal(embeddingsRequest{Input: input, Model: e.cfg.Model, Dimensions: e.cfg.Dimensions})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests || isRateLimitBody(data) {
		return nil, newRateLimitSignal(resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embeddings request failed: status %d: %s", resp.StatusCode, data)
	}

	var out embeddingsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.post(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}
	return out.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.post(ctx, texts)
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Dimensions() int   { return e.cfg.Dimensions }
func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}
func (e *OpenAIEmbedder) Close() error { return nil }

// SetBatchIndex and SetFinalBatch are no-ops: progressive thermal timeout
// scaling is a local-GPU (Ollama/MLX) concern, not applicable to a
// remote rate-limited HTTP backend.
func (e *OpenAIEmbedder) SetBatchIndex(idx int)      {}
func (e *OpenAIEmbedder) SetFinalBatch(isFinal bool) {}

func isRateLimitBody(body []byte) bool {
	s := string(body)
	return containsFold(s, "rate limit") || containsFold(s, "rate_limit")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && (bytes.Contains(bytes.ToLower([]byte(s)), bytes.ToLower([]byte(substr))))
}

// rateLimitSignal carries the Retry-After hint (if any) up to the
// scheduler's retry loop.
type rateLimitSignal struct {
	retryAfter time.Duration
	hasRetryAfter bool
}

func (r *rateLimitSignal) Error() string { return "rate limit exceeded" }

func newRateLimitSignal(retryAfterHeader string) *rateLimitSignal {
	if retryAfterHeader == "" {
		return &rateLimitSignal{}
	}
	if secs, err := time.ParseDuration(retryAfterHeader + "s"); err == nil {
		return &rateLimitSignal{retryAfter: secs, hasRetryAfter: true}
	}
	return &rateLimitSignal{}
}

// IsRateLimitSignal reports whether err signals a rate limit, and
// returns the Retry-After duration when the server supplied one.
func IsRateLimitSignal(err error) (time.Duration, bool, bool) {
	rl, ok := err.(*rateLimitSignal)
	if !ok {
		return 0, false, false
	}
	return rl.retryAfter, rl.hasRetryAfter, true
}
