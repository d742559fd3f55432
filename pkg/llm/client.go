// Package llm provides a unified interface for talking to generative-text providers.
// It supports the Gemini REST API, the Gemini Go SDK and OpenAI-compatible endpoints,
// with transport retries, model fallback and typed provider failures.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	Gemini    Provider = "gemini"
	GeminiSDK Provider = "gemini-sdk"
	OpenAI    Provider = "openai"
)

// Config holds configuration for an LLM client.
type Config struct {
	Provider      Provider      `yaml:"provider" json:"provider" env:"LLM_PROVIDER"`
	Model         string        `yaml:"model" json:"model" env:"LLM_MODEL"`
	FallbackModel string        `yaml:"fallback_model" json:"fallback_model" env:"LLM_FALLBACK_MODEL"`
	APIKey        string        `yaml:"api_key" json:"-" env:"LLM_API_KEY"`
	BaseURL       string        `yaml:"base_url" json:"base_url" env:"LLM_BASE_URL"`
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature   float64       `yaml:"temperature" json:"temperature"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      Gemini,
		Model:         "gemini-2.0-flash",
		FallbackModel: "gemini-1.5-flash",
		MaxRetries:    2,
		Timeout:       60 * time.Second,
		MaxTokens:     4096,
		Temperature:   0.4,
	}
}

// Client is the unified interface for LLM interactions.
type Client interface {
	// Generate sends a prompt and returns the LLM response.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Provider returns the name of the provider.
	Provider() Provider

	// Close releases any resources held by the client.
	Close() error
}

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request holds the parameters for an LLM generation request.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"`
}

// Response holds the result of an LLM generation.
type Response struct {
	Content      string  `json:"content"`
	FinishReason string  `json:"finish_reason,omitempty"`
	TokensIn     int     `json:"tokens_in"`
	TokensOut    int     `json:"tokens_out"`
	Cost         float64 `json:"cost"`
	Model        string  `json:"model"`
	LatencyMs    int64   `json:"latency_ms"`
}

// NewClient creates a new LLM client based on the provided config.
// When FallbackModel is set, the returned client retries once against it
// if the primary model is not found.
func NewClient(cfg Config) (Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	primary, err := newProviderClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackModel == "" || cfg.FallbackModel == cfg.Model {
		return primary, nil
	}

	fbCfg := cfg
	fbCfg.Model = cfg.FallbackModel
	fallback, err := newProviderClient(fbCfg)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("create fallback client: %w", err)
	}
	return WithFallback(primary, fallback), nil
}

func newProviderClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case Gemini:
		return newGeminiClient(cfg)
	case GeminiSDK:
		return newGeminiSDKClient(cfg)
	case OpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
