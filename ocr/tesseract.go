package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"
	"time"
)

// Tesseract runs the tesseract CLI, feeding a PNG on stdin and reading the
// recognised text from stdout.
type Tesseract struct {
	path    string
	langs   string
	timeout time.Duration
}

func NewTesseract(cfg Config) *Tesseract {
	cfg.defaults()
	return &Tesseract{path: cfg.TesseractPath, langs: cfg.Languages, timeout: cfg.Timeout}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Extract(ctx context.Context, img image.Image) (string, error) {
	var in bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&in, img); err != nil {
		return "", fmt.Errorf("ocr: encode png: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.path, "stdin", "stdout", "-l", t.langs)
	cmd.Stdin = &in
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ocr: tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return cleanText(out.String()), nil
}

// cleanText trims each line and drops empty ones.
func cleanText(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
