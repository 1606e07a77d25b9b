package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// DefaultOpenAIModel is used when the openai provider is selected without a model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIProvider implements Provider using an OpenAI-compatible embeddings API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider creates a new OpenAIProvider from the given Config.
// The SDK's own retries are disabled; a failed batch fails the request.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: cfg.Dimension,
	}
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// EmbedBatch sends texts to the /embeddings endpoint and returns vectors ordered by index.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{Model: openai.EmbeddingModel(p.model)}
	params.Input.OfArrayOfStrings = append(params.Input.OfArrayOfStrings, texts...)
	if p.dimension > 0 {
		params.Dimensions = param.NewOpt(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &UpstreamStatusError{Provider: ProviderOpenAI, StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, &NetworkError{Provider: ProviderOpenAI, Err: err}
	}

	embeddings := make([][]float64, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(embeddings) || embeddings[idx] != nil {
			return nil, &ParseError{Provider: ProviderOpenAI, Err: fmt.Errorf("unexpected embedding index %d", idx)}
		}
		embeddings[idx] = item.Embedding
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, &ParseError{Provider: ProviderOpenAI, Err: fmt.Errorf("missing embedding for text %d", i)}
		}
	}
	return embeddings, nil
}
