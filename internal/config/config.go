// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.sage/config.yaml or ./config.yaml)
//  3. Default values
//
// Main categories:
//   - AI: provider, chat model, judge model, embedder, sampling parameters
//   - Storage: PostgreSQL connection (pgvector-enabled)
//   - Retrieval: topK, rerank threshold, context character budget
//   - Pipeline: NL→SQL attempt and row-limit ceilings
//   - Eval: retry/backoff and judge cross-check tolerance
//   - Server: listen address and ingestion limits
//
// Validation uses sentinel errors so callers can test with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidTopK indicates the retrieval topK is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval topK")

	// ErrInvalidThreshold indicates the rerank threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid rerank threshold")

	// ErrInvalidContextBudget indicates the context budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidMaxAttempts indicates the SQL pipeline attempt ceiling is out of range.
	ErrInvalidMaxAttempts = errors.New("invalid SQL max attempts")

	// ErrInvalidRowLimit indicates the SQL row-limit ceiling is out of range.
	ErrInvalidRowLimit = errors.New("invalid SQL row limit")

	// ErrInvalidReasoningMarkers indicates the reasoning marker pair is malformed.
	ErrInvalidReasoningMarkers = errors.New("invalid reasoning markers")
)

// Defaults for retrieval, SQL pipeline, and evaluation settings.
const (
	// DefaultTopK is the default number of passages per vector search.
	DefaultTopK = 5

	// DefaultRerankThreshold keeps only passages at or above this relevance.
	DefaultRerankThreshold = 0.35

	// DefaultContextBudget is the fused-context character budget.
	DefaultContextBudget = 12000

	// DefaultSQLMaxAttempts bounds generate/repair cycles per request.
	DefaultSQLMaxAttempts = 3

	// DefaultSQLRowLimit caps rows returned by a generated query regardless
	// of what the query itself asks for.
	DefaultSQLRowLimit = 100

	// DefaultJudgeTolerance is the allowed divergence between the judge's
	// self-reported overall score and the locally computed weighted score
	// before a warning is emitted.
	DefaultJudgeTolerance = 5.0
)

// Config stores application configuration.
// Sensitive fields (passwords, API keys) must never be logged.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"` // "openai" (default) or "googleai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	JudgeModel  string  `mapstructure:"judge_model" json:"judge_model"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding model for vector memory
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Reasoning-region markers stripped from visible output.
	// Configuration, not hardcoded text: providers differ.
	ReasoningOpen  string `mapstructure:"reasoning_open" json:"reasoning_open"`
	ReasoningClose string `mapstructure:"reasoning_close" json:"reasoning_close"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval configuration
	TopK            int     `mapstructure:"top_k" json:"top_k"`
	RerankThreshold float64 `mapstructure:"rerank_threshold" json:"rerank_threshold"`
	ContextBudget   int     `mapstructure:"context_budget" json:"context_budget"`

	// NL→SQL pipeline configuration
	SQLMaxAttempts int `mapstructure:"sql_max_attempts" json:"sql_max_attempts"`
	SQLRowLimit    int `mapstructure:"sql_row_limit" json:"sql_row_limit"`

	// Evaluation configuration
	JudgeTolerance float64 `mapstructure:"judge_tolerance" json:"judge_tolerance"`

	// Server configuration
	ListenAddr        string `mapstructure:"listen_addr" json:"listen_addr"`
	IngestMaxChars    int    `mapstructure:"ingest_max_chars" json:"ingest_max_chars"`
	IngestRatePerMin  int    `mapstructure:"ingest_rate_per_min" json:"ingest_rate_per_min"`
	IngestRateBurst   int    `mapstructure:"ingest_rate_burst" json:"ingest_rate_burst"`
	TracingAgentHost  string `mapstructure:"tracing_agent_host" json:"tracing_agent_host"`
	TracingEnabled    bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	TracingServiceTag string `mapstructure:"tracing_service_tag" json:"tracing_service_tag"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sage")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("SAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.applyDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", "openai")
	v.SetDefault("model_name", "gpt-4o-mini")
	v.SetDefault("judge_model", "gpt-4o")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("reasoning_open", "<think>")
	v.SetDefault("reasoning_close", "</think>")

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "sage")
	v.SetDefault("postgres_password", "sage_dev_password")
	v.SetDefault("postgres_db_name", "sage")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval defaults
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("rerank_threshold", DefaultRerankThreshold)
	v.SetDefault("context_budget", DefaultContextBudget)

	// SQL pipeline defaults
	v.SetDefault("sql_max_attempts", DefaultSQLMaxAttempts)
	v.SetDefault("sql_row_limit", DefaultSQLRowLimit)

	// Evaluation defaults
	v.SetDefault("judge_tolerance", DefaultJudgeTolerance)

	// Server defaults
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("ingest_max_chars", 50000)
	v.SetDefault("ingest_rate_per_min", 30)
	v.SetDefault("ingest_rate_burst", 10)
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_agent_host", "localhost:4318")
	v.SetDefault("tracing_service_tag", "sage")
}

// applyDatabaseURL overrides postgres settings from a postgres:// URL.
// Commonly used in cloud deployments; takes priority over individual keys.
func (c *Config) applyDatabaseURL(dbURL string) error {
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://, got %q", parsed.Scheme)
	}

	if host := parsed.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if port := parsed.Port(); port != "" {
		p, err := portNumber(port)
		if err != nil {
			return err
		}
		c.PostgresPort = p
	}
	if user := parsed.User.Username(); user != "" {
		c.PostgresUser = user
	}
	if pw, ok := parsed.User.Password(); ok {
		c.PostgresPassword = pw
	}
	if name := strings.TrimPrefix(parsed.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := parsed.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

func portNumber(s string) (int, error) {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("invalid port in DATABASE_URL: %q", s)
		}
		n = n*10 + int(ch-'0')
		if n > 65535 {
			return 0, fmt.Errorf("port out of range in DATABASE_URL: %q", s)
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid port in DATABASE_URL: %q", s)
	}
	return n, nil
}
