package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// ollamaClient calls a local Ollama server's /api/embed.
type ollamaClient struct {
	host   string
	model  string
	client *http.Client
	cfg    Config

	mu  sync.Mutex
	dim int
}

func newOllamaClient(cfg Config) *ollamaClient {
	return &ollamaClient{
		host:   strings.TrimRight(cfg.Endpoint, "/"),
		model:  cfg.Model,
		dim:    cfg.Dimension,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

type ollamaRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *ollamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embeddings")
	}

	vec := out.Embeddings[0]
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.dim == 0:
		c.dim = len(vec)
		c.cfg.Logger.Info("embedder: detected dimension", "dimension", c.dim, "model", c.model)
	case len(vec) != c.dim:
		return nil, fmt.Errorf("embedding dimension %d, want %d", len(vec), c.dim)
	}
	return vec, nil
}

func (c *ollamaClient) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

func (c *ollamaClient) Model() string { return c.model }
