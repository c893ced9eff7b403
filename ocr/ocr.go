// Package ocr extracts text from captured frames. Providers are chosen once
// at startup; the capture pipeline only sees Extractor and treats any error
// as "no text".
package ocr

import (
	"context"
	"image"
	"log/slog"
	"os/exec"
	"time"
)

// Extractor returns the text visible in img. An empty string is a valid
// answer.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) (string, error)
	Name() string
}

// Config selects a provider.
type Config struct {
	// Provider is "tesseract", "vision", "auto" or "none". "auto" picks
	// tesseract when the binary is on PATH and none otherwise.
	Provider string `yaml:"provider"`

	// TesseractPath and Languages configure the tesseract CLI.
	TesseractPath string `yaml:"tesseract_path"`
	Languages     string `yaml:"languages"`

	// Endpoint, Model and APIKey configure an OpenAI-compatible vision model.
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`

	Timeout time.Duration `yaml:"timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Provider == "" {
		c.Provider = "auto"
	}
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.Languages == "" {
		c.Languages = "eng"
	}
	if c.Endpoint == "" {
		c.Endpoint = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New builds the configured provider. It never fails: a provider that
// cannot run on this machine degrades to Noop with a warning.
func New(cfg Config) Extractor {
	cfg.defaults()
	switch cfg.Provider {
	case "none":
		return Noop{}
	case "vision":
		return NewVision(cfg)
	case "tesseract", "auto":
		if _, err := exec.LookPath(cfg.TesseractPath); err != nil {
			if cfg.Provider == "tesseract" {
				cfg.Logger.Warn("ocr: tesseract not found, text extraction disabled", "path", cfg.TesseractPath)
			}
			return Noop{}
		}
		return NewTesseract(cfg)
	default:
		cfg.Logger.Warn("ocr: unknown provider, text extraction disabled", "provider", cfg.Provider)
		return Noop{}
	}
}

// Noop extracts nothing.
type Noop struct{}

func (Noop) Extract(context.Context, image.Image) (string, error) { return "", nil }
func (Noop) Name() string                                         { return "none" }
