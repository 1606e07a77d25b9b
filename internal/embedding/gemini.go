package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "models/gemini-embedding-001"
	DefaultTaskType      = "CLASSIFICATION"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// GeminiProvider implements Provider using the Gemini batchEmbedContents API.
type GeminiProvider struct {
	endpoint  string
	model     string
	apiKey    string
	taskType  string
	dimension int
	client    *http.Client
}

// NewGeminiProvider creates a GeminiProvider from the given Config.
func NewGeminiProvider(cfg Config) *GeminiProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	taskType := cfg.TaskType
	if taskType == "" {
		taskType = DefaultTaskType
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &GeminiProvider{
		endpoint:  base + "/" + model + ":batchEmbedContents",
		model:     model,
		apiKey:    cfg.APIKey,
		taskType:  taskType,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	TaskType             string        `json:"task_type"`
	Content              geminiContent `json:"content"`
	OutputDimensionality int           `json:"output_dimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiEmbedding struct {
	Values []float64 `json:"values"`
}

type geminiBatchResponse struct {
	Embeddings []geminiEmbedding `json:"embeddings"`
}

// EmbedBatch sends texts in one batchEmbedContents call and returns the raw vectors.
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqs := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		reqs[i] = geminiEmbedRequest{
			Model:                p.model,
			TaskType:             p.taskType,
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			OutputDimensionality: p.dimension,
		}
	}

	body, err := json.Marshal(geminiBatchRequest{Requests: reqs})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: ProviderGemini, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamStatusError{
			Provider:   ProviderGemini,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var result geminiBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ParseError{Provider: ProviderGemini, Err: fmt.Errorf("decode: %w", err)}
	}
	if result.Embeddings == nil {
		return nil, &ParseError{Provider: ProviderGemini, Err: errors.New("missing embeddings field")}
	}

	embeddings := make([][]float64, len(result.Embeddings))
	for i, e := range result.Embeddings {
		if len(e.Values) == 0 {
			return nil, &ParseError{Provider: ProviderGemini, Err: fmt.Errorf("embedding %d has no values", i)}
		}
		embeddings[i] = e.Values
	}
	return embeddings, nil
}
