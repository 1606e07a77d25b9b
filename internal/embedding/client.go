package embedding

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nidhogg/txembed/internal/vector"
)

const tracerName = "github.com/nidhogg/txembed/internal/embedding"

// BatchClient embeds arbitrarily long text lists through a Provider that
// accepts at most batchSize texts per call. Results are unit-normalized and
// returned in input order.
type BatchClient struct {
	provider       Provider
	batchSize      int
	maxConcurrency int
	logger         *zap.Logger
	metrics        *Metrics
	tracer         trace.Tracer
}

// Option customizes a BatchClient.
type Option func(*BatchClient)

// WithMetrics records every provider call on m.
func WithMetrics(m *Metrics) Option {
	return func(c *BatchClient) { c.metrics = m }
}

// WithTracer replaces the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *BatchClient) { c.tracer = t }
}

// NewBatchClient creates a BatchClient over p. Batch size and concurrency come from cfg.
func NewBatchClient(p Provider, cfg Config, logger *zap.Logger, opts ...Option) *BatchClient {
	c := &BatchClient{
		provider:       p,
		batchSize:      cfg.BatchSize,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.maxConcurrency <= 0 {
		c.maxConcurrency = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns one normalized embedding per text. Any batch failure fails
// the whole call with a *BatchError; there are no partial results.
func (c *BatchClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	batches := Partition(texts, c.batchSize)
	out := make([][]float64, len(texts))

	if c.maxConcurrency == 1 || len(batches) == 1 {
		for _, b := range batches {
			vecs, err := c.embedBatch(ctx, b)
			if err != nil {
				return nil, err
			}
			copy(out[b.Offset:], vecs)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for _, b := range batches {
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, b)
			if err != nil {
				return err
			}
			copy(out[b.Offset:], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BatchClient) embedBatch(ctx context.Context, b Batch) ([][]float64, error) {
	name := c.provider.Name()
	ctx, span := c.tracer.Start(ctx, "embedding.batch", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.Int("batch.index", b.Index),
		attribute.Int("batch.size", len(b.Texts)),
	))
	defer span.End()

	start := time.Now()
	vecs, err := c.callProvider(ctx, b.Texts)
	c.metrics.observe(name, len(b.Texts), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("embedding batch failed",
			zap.String("provider", name),
			zap.Int("batch", b.Index),
			zap.Int("size", len(b.Texts)),
			zap.Error(err),
		)
		return nil, &BatchError{Index: b.Index, Offset: b.Offset, Size: len(b.Texts), Err: err}
	}
	return vecs, nil
}

// callProvider runs one provider call and normalizes what comes back.
func (c *BatchClient) callProvider(ctx context.Context, texts []string) ([][]float64, error) {
	name := c.provider.Name()
	raw, err := c.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, &ParseError{Provider: name, Err: fmt.Errorf("got %d embeddings for %d texts", len(raw), len(texts))}
	}

	normalized := make([][]float64, len(raw))
	for i, v := range raw {
		n, err := vector.Normalize(v)
		if err != nil {
			return nil, &ParseError{Provider: name, Err: fmt.Errorf("embedding %d: %w", i, err)}
		}
		if ce := c.logger.Check(zap.DebugLevel, "normalized embedding"); ce != nil {
			ce.Write(zap.Int("length", len(n)), zap.Float64("norm", vector.Norm(n)))
		}
		normalized[i] = n
	}
	return normalized, nil
}
