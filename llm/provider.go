// Package llm talks to chat and embedding models over OpenAI-compatible HTTP
// APIs.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for LLM interactions.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// Timeout bounds a single HTTP request. Zero means two minutes.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// MaxRetries caps retries on 429/502/503/504 and network errors.
	// Negative disables retries; zero means the default of 3.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

var defaultBaseURLs = map[string]string{
	"ollama":   "http://localhost:11434",
	"lmstudio": "http://localhost:1234",
	"openai":   "https://api.openai.com",
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}
	switch cfg.Provider {
	case "ollama":
		return &ollamaProvider{base: newCompatClient(cfg)}, nil
	case "openai":
		if cfg.Model == "" {
			cfg.Model = "text-embedding-3-small"
		}
		return &compatProvider{base: newCompatClient(cfg)}, nil
	case "lmstudio", "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %s needs a base_url", cfg.Provider)
		}
		return &compatProvider{base: newCompatClient(cfg)}, nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
