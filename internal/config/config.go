package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nidhogg/txembed/internal/embedding"
)

// EnvPrefix prefixes every environment override, e.g. TXEMBED_EMBEDDING_API_KEY.
const EnvPrefix = "TXEMBED"

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type EmbeddingConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	Dimension      int           `mapstructure:"dimension"`
	BatchSize      int           `mapstructure:"batch_size"`
	TaskType       string        `mapstructure:"task_type"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Load reads .env, the optional config file at path (or $CONFIG_PATH), and
// TXEMBED_* environment variables, in increasing order of precedence over the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The provider key is commonly exported under its own name.
	_ = v.BindEnv("embedding.api_key", EnvPrefix+"_EMBEDDING_API_KEY", "GEMINI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaultModel(cfg.Embedding.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("embedding.provider", embedding.ProviderGemini)
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimension", embedding.DefaultDimension)
	v.SetDefault("embedding.batch_size", embedding.DefaultBatchSize)
	v.SetDefault("embedding.task_type", embedding.DefaultTaskType)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_concurrency", 1)

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.service_name", "txembed")
}

func defaultModel(provider string) string {
	if provider == embedding.ProviderOpenAI {
		return embedding.DefaultOpenAIModel
	}
	return embedding.DefaultGeminiModel
}

// Validate reports the first configuration problem that would stop the service.
func (c *Config) Validate() error {
	e := c.Embedding
	switch {
	case e.Provider != embedding.ProviderGemini && e.Provider != embedding.ProviderOpenAI:
		return fmt.Errorf("config: unknown embedding provider %q", e.Provider)
	case strings.TrimSpace(e.APIKey) == "":
		return errors.New("config: missing embedding api key (TXEMBED_EMBEDDING_API_KEY or GEMINI_API_KEY)")
	case e.Dimension <= 0:
		return fmt.Errorf("config: embedding dimension must be positive, got %d", e.Dimension)
	case e.BatchSize <= 0:
		return fmt.Errorf("config: embedding batch size must be positive, got %d", e.BatchSize)
	case e.MaxConcurrency <= 0:
		return fmt.Errorf("config: embedding max concurrency must be positive, got %d", e.MaxConcurrency)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	return nil
}

// EmbeddingClientConfig converts the embedding section for the embedding package.
func (c *Config) EmbeddingClientConfig() embedding.Config {
	e := c.Embedding
	return embedding.Config{
		Provider:       e.Provider,
		BaseURL:        e.BaseURL,
		Model:          e.Model,
		APIKey:         e.APIKey,
		TaskType:       e.TaskType,
		Dimension:      e.Dimension,
		BatchSize:      e.BatchSize,
		MaxConcurrency: e.MaxConcurrency,
		Timeout:        e.Timeout,
	}
}
