package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

const visionPrompt = "Transcribe all text visible in this screenshot. " +
	"Output only the text, one line per visual line, without commentary. " +
	"If there is no text, output nothing."

// Vision asks an OpenAI-compatible multimodal chat model to transcribe the
// frame. Useful where no local OCR engine is installed.
type Vision struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func NewVision(cfg Config) *Vision {
	cfg.defaults()
	return &Vision{
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (v *Vision) Name() string { return "vision:" + v.model }

func (v *Vision) Extract(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("ocr: encode jpeg: %w", err)
	}
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(visionPrompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}),
		}),
	}
	body, err := json.Marshal(map[string]any{
		"model":       v.model,
		"messages":    messages,
		"temperature": 0,
	})
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: vision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ocr: vision status %d: %s", resp.StatusCode, snippet)
	}

	var completion openai.ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return cleanText(completion.Choices[0].Message.Content), nil
}
