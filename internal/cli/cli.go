package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignatij/goclassify/internal/config"
	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/internal/metrics"
	internal_storage "github.com/ignatij/goclassify/internal/storage"
	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/llm/providers"
	"github.com/spf13/cobra"
)

// NewCompleter builds the remote model client from the configuration. Tests
// replace it with a fake.
var NewCompleter = func(ctx context.Context, cfg config.Config) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return providers.NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return providers.NewGeminiCompleter(ctx, cfg.APIKey, cfg.Model)
	}
}

// SetupCLI registers every command and the global flags on rootCmd.
func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "SQLite file or postgres:// URL (overrides DB_PATH)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load if present")
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(
		defineCmd(),
		tasksCmd(),
		importCmd(),
		runCmd(),
		resetCmd(),
		inputsCmd(),
		statsCmd(),
		exportCmd(),
		serveCmd(),
		watchCmd(),
	)
}

// loadConfig reads the environment file and applies the global flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.LogLevel != "" || cfg.LogFormat != "" {
		log.Configure(cfg.LogLevel, cfg.LogFormat)
	}
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		return config.Config{}, err
	}
	if dbConnStr != "" {
		cfg.DB = dbConnStr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func initStore(cfg config.Config) (*internal_storage.SQLStore, error) {
	log.GetLogger().Debugf("Opening store %s", cfg.DB)
	store, err := internal_storage.InitStore(cfg.DB)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return store, nil
}

// newClient builds the rate-limited retrying client shared by a whole command.
func newClient(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*llm.Client, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	completer, err := NewCompleter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}
	return llm.NewClient(completer, cfg.Concurrency,
		llm.WithRetryConfig(cfg.RetryConfig()),
		llm.WithLogger(log.GetLogger()),
		llm.WithMetrics(m),
	), nil
}

// signalContext is cancelled on SIGINT or SIGTERM. Cancelling a run stops
// dispatch and lets in-flight calls finish.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
