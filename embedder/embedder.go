// Package embedder turns OCR text into semantic vectors.
//
// A provider is picked once at startup from Config; callers only see the
// Embedder interface. When no provider is configured New returns Noop,
// which always answers with a zero-length vector and reports dimension 0,
// so "no semantic data" stays distinguishable from a real vector.
//
//	emb := embedder.New(embedder.Config{
//	    Provider: "ollama",
//	    Endpoint: "http://localhost:11434",
//	    Model:    "nomic-embed-text",
//	})
//	vec, err := emb.Embed(ctx, "quarterly report draft")
package embedder

import (
	"context"
	"log/slog"
	"time"
)

// Embedder converts text to a vector of fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the vector length the provider produces, or 0 when it
	// produces none or has not answered yet.
	Dimension() int

	Model() string
}

// Config selects and configures a provider.
type Config struct {
	// Provider is "openai" (any /v1/embeddings server), "ollama", or empty
	// for Noop.
	Provider string `json:"provider" yaml:"provider"`

	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Model    string `json:"model" yaml:"model"`
	APIKey   string `json:"-" yaml:"api_key"`

	// Dimension is the expected vector length. 0 detects it on first call.
	Dimension int `json:"dimension" yaml:"dimension"`

	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Provider == "ollama" && c.Endpoint == "" {
		c.Endpoint = "http://localhost:11434"
	}
}

// New returns the provider named by cfg.Provider. An unknown provider or a
// missing endpoint yields Noop and a warning.
func New(cfg Config) Embedder {
	cfg.defaults()
	switch cfg.Provider {
	case "":
		return Noop{}
	case "openai":
		if cfg.Endpoint == "" {
			cfg.Logger.Warn("embedder: openai provider without endpoint, semantic search disabled")
			return Noop{}
		}
		return newOpenAIClient(cfg)
	case "ollama":
		return newOllamaClient(cfg)
	default:
		cfg.Logger.Warn("embedder: unknown provider, semantic search disabled", "provider", cfg.Provider)
		return Noop{}
	}
}

// Noop is the embedder of a platform without a provider.
type Noop struct{}

func (Noop) Embed(context.Context, string) ([]float32, error) { return []float32{}, nil }
func (Noop) Dimension() int                                   { return 0 }
func (Noop) Model() string                                    { return "" }
