// Package config loads the runtime configuration from the environment and
// task definitions from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/llm/providers"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	DefaultDBPath   = "data.db"
	DefaultHTTPPort = "8080"
)

type Config struct {
	Concurrency    int
	MaxAttempts    int
	BackoffBase    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration

	Provider string
	Model    string
	BaseURL  string
	APIKey   string

	// DB is a SQLite file path or a postgres:// URL.
	DB       string
	HTTPPort string

	LogLevel  string
	LogFormat string
}

// Load reads envFile, when it exists, into the process environment without
// overriding variables that are already set, then builds the configuration.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment.
func FromEnv() (Config, error) {
	retry := llm.DefaultRetryConfig()
	cfg := Config{
		Provider:  strings.ToLower(envOr("LLM_PROVIDER", ProviderGemini)),
		BaseURL:   os.Getenv("LLM_BASE_URL"),
		DB:        envOr("DB_PATH", envOr("STORAGE_PATH", DefaultDBPath)),
		HTTPPort:  envOr("HTTP_PORT", DefaultHTTPPort),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),
	}

	var err error
	if cfg.Concurrency, err = intEnv("CONCURRENCY_LIMIT", 1); err != nil {
		return Config{}, err
	}
	if cfg.MaxAttempts, err = intEnv("RETRY_MAX", retry.MaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.BackoffBase, err = durationEnv("BACKOFF_BASE", retry.BackoffBase); err != nil {
		return Config{}, err
	}
	if cfg.MaxBackoff, err = durationEnv("BACKOFF_MAX", retry.MaxBackoff); err != nil {
		return Config{}, err
	}
	if cfg.AttemptTimeout, err = durationEnv("ATTEMPT_TIMEOUT", retry.AttemptTimeout); err != nil {
		return Config{}, err
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		cfg.Model = envOr("LLM_MODEL", providers.DefaultOpenAIModel)
		cfg.APIKey = envOr("API_KEY", os.Getenv("OPENAI_API_KEY"))
	default:
		cfg.Model = envOr("LLM_MODEL", providers.DefaultGeminiModel)
		cfg.APIKey = envOr("API_KEY", os.Getenv("GEMINI_API_KEY"))
	}
	return cfg, nil
}

// Validate reports settings no run could succeed with. It does not look at
// the API key; see ValidateCredentials.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("CONCURRENCY_LIMIT must be positive, got %d", c.Concurrency)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX must be positive, got %d", c.MaxAttempts)
	}
	if c.BackoffBase <= 0 || c.MaxBackoff <= 0 {
		return fmt.Errorf("BACKOFF_BASE and BACKOFF_MAX must be positive")
	}
	if c.BackoffBase > c.MaxBackoff {
		return fmt.Errorf("BACKOFF_BASE %s exceeds BACKOFF_MAX %s", c.BackoffBase, c.MaxBackoff)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("ATTEMPT_TIMEOUT must be positive")
	}
	if c.Provider != ProviderGemini && c.Provider != ProviderOpenAI {
		return fmt.Errorf("unknown LLM_PROVIDER %q; must be %q or %q", c.Provider, ProviderGemini, ProviderOpenAI)
	}
	return nil
}

// ValidateCredentials checks the API key, which only commands that call the
// model need.
func (c Config) ValidateCredentials() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is not set")
	}
	if strings.ContainsAny(c.APIKey, " \t\r\n") {
		return fmt.Errorf("API_KEY contains whitespace")
	}
	return nil
}

func (c Config) RetryConfig() llm.RetryConfig {
	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = c.MaxAttempts
	retry.BackoffBase = c.BackoffBase
	retry.MaxBackoff = c.MaxBackoff
	retry.AttemptTimeout = c.AttemptTimeout
	return retry
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// durationEnv accepts Go durations ("750ms", "4s") and bare numbers of seconds.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}
