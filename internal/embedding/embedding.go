package embedding

import (
	"context"
	"fmt"
	"time"
)

// Provider embeds one batch of texts against an external embedding API.
// It returns one raw vector per input text, in input order.
type Provider interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Config holds embedding provider configuration.
type Config struct {
	Provider       string        `json:"provider"` // "gemini" or "openai"
	BaseURL        string        `json:"base_url"`
	Model          string        `json:"model"`
	APIKey         string        `json:"api_key"`
	TaskType       string        `json:"task_type"`
	Dimension      int           `json:"dimension"`
	BatchSize      int           `json:"batch_size"`
	MaxConcurrency int           `json:"max_concurrency"`
	Timeout        time.Duration `json:"timeout"`
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultBatchSize = 25
	DefaultDimension = 768
)

// NewProvider builds the Provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiProvider(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
