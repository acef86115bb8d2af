package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/llm"
)

// EnvPrefix prefixes every environment override, e.g. SAFFRON_LLM_MODEL.
const EnvPrefix = "SAFFRON"

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "~/.local/share/saffron/saffron.db"

// apiKeyEnv names the conventional key variable for each provider.
var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// Settings is the typed view of the configuration file.
type Settings struct {
	Database       DatabaseSettings       `mapstructure:"database"`
	Logging        LoggingSettings        `mapstructure:"logging"`
	LLM            LLMSettings            `mapstructure:"llm"`
	Categorization CategorizationSettings `mapstructure:"categorization"`
}

// DatabaseSettings locates the SQLite file.
type DatabaseSettings struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoggingSettings configures the default slog logger.
type LoggingSettings struct {
	Level  string `mapstructure:"level"  validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console text json"`
}

// LLMSettings configures the advisory model.
type LLMSettings struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Temperature float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens"  validate:"gte=0"`
	BatchSize   int           `mapstructure:"batch_size"  validate:"gte=0"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	RateLimit   int           `mapstructure:"rate_limit"  validate:"gte=0"`
}

// CategorizationSettings holds engine thresholds.
type CategorizationSettings struct {
	AutoAssignThreshold          float64 `mapstructure:"auto_assign_threshold"           validate:"gte=0,lte=1"`
	NeedsReviewThreshold         float64 `mapstructure:"needs_review_threshold"          validate:"gte=0,lte=1,ltefield=AutoAssignThreshold"`
	DynamicAutoApproveConfidence float64 `mapstructure:"dynamic_auto_approve_confidence" validate:"gte=0,lte=1"`
	DynamicMinTransactions       int     `mapstructure:"dynamic_min_transactions"        validate:"gte=0"`
	SimilarHistoryLimit          int     `mapstructure:"similar_history_limit"           validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers every key so environment overrides are seen by Load.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.batch_size", 6)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "1s")
	v.SetDefault("llm.rate_limit", 0)

	v.SetDefault("categorization.auto_assign_threshold", engine.DefaultAutoAssignThreshold)
	v.SetDefault("categorization.needs_review_threshold", engine.DefaultNeedsReviewThreshold)
	v.SetDefault("categorization.dynamic_auto_approve_confidence", engine.DefaultDynamicAutoApproveConfidence)
	v.SetDefault("categorization.dynamic_min_transactions", engine.DefaultDynamicMinTransactionsForNew)
	v.SetDefault("categorization.similar_history_limit", engine.DefaultSimilarHistoryLimit)
}

// Configure points v at configFile, or at config.yaml in
// ~/.config/saffron and the working directory, and enables SAFFRON_*
// environment overrides.
func Configure(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".config", "saffron"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	s.Database.Path = ExpandPath(s.Database.Path)
	s.LLM.Provider = strings.ToLower(s.LLM.Provider)
	if s.LLM.APIKey == "" {
		if env, ok := apiKeyEnv[s.LLM.Provider]; ok {
			s.LLM.APIKey = os.Getenv(env)
		}
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	if s.LLM.Enabled && !llm.SupportedProvider(s.LLM.Provider) {
		slog.Warn("unsupported LLM provider; external categorization disabled", "provider", s.LLM.Provider)
	}
	return &s, nil
}

// Available reports whether the advisory model can be called.
func (l LLMSettings) Available() bool {
	return l.Enabled && llm.SupportedProvider(l.Provider) && l.APIKey != ""
}

// ClientConfig converts the settings for llm.NewSuggesterFromConfig.
func (l LLMSettings) ClientConfig() llm.Config {
	temperature := l.Temperature
	return llm.Config{
		Provider:    l.Provider,
		APIKey:      l.APIKey,
		Model:       l.Model,
		BaseURL:     l.BaseURL,
		MaxRetries:  l.MaxRetries,
		RetryDelay:  l.RetryDelay,
		RateLimit:   l.RateLimit,
		Temperature: &temperature,
		MaxTokens:   l.MaxTokens,
		BatchSize:   l.BatchSize,
	}
}

// EngineConfig converts the dynamic-category policy.
func (c CategorizationSettings) EngineConfig() engine.Config {
	return engine.Config{
		DynamicAutoApproveConfidence: c.DynamicAutoApproveConfidence,
		DynamicMinTransactionsForNew: c.DynamicMinTransactions,
		SimilarHistoryLimit:          c.SimilarHistoryLimit,
	}
}

// Options returns run options with the configured thresholds and side
// effects enabled.
func (c CategorizationSettings) Options() engine.Options {
	opts := engine.DefaultOptions()
	opts.AutoAssignThreshold = c.AutoAssignThreshold
	opts.NeedsReviewThreshold = c.NeedsReviewThreshold
	return opts
}
