// This file contains the OpenAI-compatible vision-language client. It works
// against any endpoint speaking the chat completions API with image parts
// (vLLM, SGLang, Ollama, OpenAI itself).
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"livevlm/vision"
)

// DefaultPrompt asks for a single-sentence scene description.
const DefaultPrompt = "Describe what you see in this image in one sentence."

// ClientConfig holds connection settings for the inference backend.
type ClientConfig struct {
	// Model is the backend model identifier (required).
	Model string

	// APIBase is the OpenAI-compatible endpoint, e.g.
	// http://localhost:8000/v1. Empty uses the library default.
	APIBase string

	// APIKey authenticates against the endpoint. Local servers typically
	// accept the placeholder "EMPTY".
	APIKey string

	// MaxTokens caps the generated description length.
	MaxTokens int

	// HTTPTimeout bounds the underlying HTTP request.
	HTTPTimeout time.Duration
}

// Client calls a vision-language model over an OpenAI-compatible API.
// Safe for concurrent use; the coordinator only ever has one call in
// flight, but nothing here depends on that.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

// NewClient builds a client from cfg. Returns an error only for
// configuration that can never produce a working client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("inference: model is required")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "EMPTY"
	}
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = 128
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 90 * time.Second
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		apiConfig.BaseURL = strings.TrimRight(cfg.APIBase, "/")
	}
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	return &Client{
		api:       openai.NewClientWithConfig(apiConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Infer sends one frame and the prompt and returns the generated text.
func (c *Client) Infer(ctx context.Context, imageJPEG []byte, prompt string) (string, error) {
	if len(imageJPEG) == 0 {
		return "", errors.New("inference: empty image payload")
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    vision.DataURL(imageJPEG),
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("inference: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("inference: backend returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
