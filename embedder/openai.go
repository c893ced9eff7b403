package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// openaiClient speaks the /v1/embeddings format served by OpenAI, vLLM,
// llama.cpp and most local inference servers.
type openaiClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	cfg      Config

	mu  sync.Mutex
	dim int
}

func newOpenAIClient(cfg Config) *openaiClient {
	return &openaiClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		dim:      cfg.Dimension,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
	}
}

type openaiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (c *openaiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openaiRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, snippet)
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned from %s", url)
	}

	vec := out.Data[0].Embedding
	if err := c.checkDim(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

// checkDim records the dimension on first success and rejects answers of a
// different length afterwards.
func (c *openaiClient) checkDim(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim == 0 {
		c.dim = n
		c.cfg.Logger.Info("embedder: detected dimension", "dimension", n, "model", c.model)
		return nil
	}
	if n != c.dim {
		return fmt.Errorf("embedding dimension %d, want %d", n, c.dim)
	}
	return nil
}

func (c *openaiClient) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

func (c *openaiClient) Model() string { return c.model }
