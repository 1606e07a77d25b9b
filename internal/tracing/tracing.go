// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// Config selects where spans go. An empty Endpoint records spans without exporting them.
type Config struct {
	Endpoint    string
	ServiceName string
}

// Setup installs a global tracer provider and returns its shutdown function.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		)),
	}

	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		clientOpts := []otlptracehttp.Option{}
		switch {
		case strings.HasPrefix(endpoint, "http://"):
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "http://")))
		case strings.HasPrefix(endpoint, "https://"):
			clientOpts = append(clientOpts, otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "https://")))
		default:
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(endpoint))
		}
		exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(clientOpts...))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("trace export enabled", zap.String("endpoint", endpoint))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
