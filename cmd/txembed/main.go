// txembed serves unit-normalized text embeddings for transaction descriptions.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/txembed/internal/config"
	"github.com/nidhogg/txembed/internal/embedding"
	"github.com/nidhogg/txembed/internal/logging"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgPath  string
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "txembed",
	Short: "Embedding service for transaction descriptions",
	Long: `txembed batches transaction descriptions, sends them to an embedding
provider (Gemini by default) and returns unit-length vectors in input order.

Examples:
  # Run the HTTP API
  txembed serve

  # Embed a few descriptions from the command line
  txembed embed "Compra de alimentos" "Pagamento de conta de luz"`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file, json/yaml/toml (default $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override server.log_level (debug, info, warn, error, dev)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(embedCmd)
}

// runtime is the wiring shared by every subcommand.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	client   *embedding.BatchClient
}

func setup() (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	logger, err := logging.New(cfg.Server.LogLevel, cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}

	ecfg := cfg.EmbeddingClientConfig()
	provider, err := embedding.NewProvider(ecfg)
	if err != nil {
		return nil, err
	}

	var opts []embedding.Option
	var registry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		opts = append(opts, embedding.WithMetrics(embedding.NewMetrics(registry)))
	}

	logger.Info("embedding provider configured",
		zap.String("provider", provider.Name()),
		zap.String("model", ecfg.Model),
		zap.Int("dimension", ecfg.Dimension),
		zap.Int("batch_size", ecfg.BatchSize),
		zap.Int("max_concurrency", ecfg.MaxConcurrency),
	)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		client:   embedding.NewBatchClient(provider, ecfg, logger, opts...),
	}, nil
}
