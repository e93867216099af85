package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Client talks to a text-embeddings-inference style HTTP service. The
// service accepts a batch of texts and returns one vector per text.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	batchSize  int
	logger     *slog.Logger
}

// Config configures the embedding client.
type Config struct {
	Endpoint  string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

// NewClient creates an embedding client. BatchSize limits how many texts go
// into a single request; larger inputs are split into sequential batches.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 32
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		batchSize:  batch,
		logger:     logger.With(slog.String("component", "embed_client")),
	}
}

var _ Embedder = (*Client)(nil)

// embedRequest is the JSON request body for the /embed endpoint.
type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Model     string   `json:"model,omitempty"`
	Normalize bool     `json:"normalize"`
}

// Embed returns one vector per input text. Inputs beyond the batch size are
// sent in multiple sequential requests; a failure in any batch fails the
// whole call so the caller can fall back to degraded scoring.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts, Model: c.model, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoEmbedder, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrNoEmbedder, resp.StatusCode, string(data))
	}

	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	c.logger.Debug("embedded batch", slog.Int("texts", len(texts)), slog.Int("dim", dim(vecs)))
	return vecs, nil
}

func dim(vecs [][]float32) int {
	if len(vecs) == 0 {
		return 0
	}
	return len(vecs[0])
}
