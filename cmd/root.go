package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SamoraDC/Tetrad/internal/evaluator"
	"github.com/SamoraDC/Tetrad/internal/llm"
	"github.com/SamoraDC/Tetrad/internal/metrics"
	"github.com/SamoraDC/Tetrad/internal/output"
	"github.com/SamoraDC/Tetrad/internal/reasoning"
	"github.com/SamoraDC/Tetrad/internal/review"
	"github.com/SamoraDC/Tetrad/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *zap.Logger
	orch      *review.Orchestrator

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "tetrad",
	Short: "Tetrad - multi-evaluator consensus review for AI-written code",
	Long: `tetrad asks several independent evaluators to review a plan, code or
tests, aggregates their votes under a consensus rule, and learns from every
decision which code patterns tend to fail review.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tetrad/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "tetrad")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TETRAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "tetrad"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("consensus.rule", "strong")
	viper.SetDefault("consensus.min_score", 70)
	viper.SetDefault("consensus.max_loops", 3)
	viper.SetDefault("consensus.high_confidence_band", 10)
	viper.SetDefault("reasoning.enabled", true)
	viper.SetDefault("reasoning.db_path", filepath.Join(stateDir, "tetrad.db"))
	viper.SetDefault("reasoning.max_patterns", 10)
	viper.SetDefault("reasoning.consolidation_interval", 100)
	viper.SetDefault("reasoning.success_loop_threshold", 2)
	viper.SetDefault("reasoning.prune_min_observations", 3)
	viper.SetDefault("reasoning.prune_max_confidence", 0.3)
	viper.SetDefault("reasoning.prune_min_age", "720h")
	viper.SetDefault("reasoning.reinforce_min_observations", 10)
	viper.SetDefault("reasoning.reinforce_min_confidence", 0.7)
	viper.SetDefault("reasoning.merge_similarity", 0.8)
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.capacity", 100)
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("evaluators.timeout", "60s")
	viper.SetDefault("evaluators.list", evaluator.DefaultPersonas)
	viper.SetDefault("evaluators.rate_per_minute", 50)
	viper.SetDefault("evaluators.burst", 5)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", llm.DefaultModel)
	viper.SetDefault("metrics.addr", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Logger, store and orchestrator are built lazily, only when commands
	// actually need them. This allows config/version commands to run
	// without a db.
}

func closeDeps() {
	if logger != nil {
		_ = logger.Sync()
	}
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
		orch = nil
	}
}

// getLogger returns the shared logger, building it on first call.
func getLogger() (*zap.Logger, error) {
	if logger != nil {
		return logger, nil
	}
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	l, err := newLogger(level, viper.GetString("log.format"), os.Stderr)
	if err != nil {
		return nil, err
	}
	logger = l
	return logger, nil
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("reasoning.db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", reasoning.ErrStoreUnavailable, err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: migrate database: %w", reasoning.ErrStoreUnavailable, err)
	}

	dataStore = s
	return dataStore, nil
}

// getBank returns a ReasoningBank over the shared store.
func getBank() (*reasoning.Bank, error) {
	cfg := reasoning.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	l, err := getLogger()
	if err != nil {
		return nil, err
	}
	return reasoning.New(s, cfg, reasoning.WithLogger(l.Named("reasoning"))), nil
}

// getOrchestrator returns the shared orchestrator, wiring evaluators, cache,
// ReasoningBank and metrics from config on first call. A pattern store that
// cannot be opened disables learning instead of failing: decisions are still
// delivered and status reports the store error.
func getOrchestrator(reg prometheus.Registerer) (*review.Orchestrator, error) {
	if orch != nil {
		return orch, nil
	}
	l, err := getLogger()
	if err != nil {
		return nil, err
	}

	cfg := review.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	evaluators, err := evaluator.Build(evaluator.DefaultConfig(), l.Named("evaluator"))
	if err != nil {
		return nil, err
	}

	c, err := cfg.NewCache()
	if err != nil {
		return nil, err
	}
	opts := []review.Option{
		review.WithLogger(l.Named("review")),
		review.WithCache(c),
	}
	if reg != nil {
		opts = append(opts, review.WithMetrics(metrics.New(reg)))
	}
	if cfg.ReasoningEnabled {
		bank, err := getBank()
		switch {
		case errors.Is(err, reasoning.ErrStoreUnavailable):
			opts = append(opts, review.WithStoreError(err))
		case err != nil:
			return nil, err
		default:
			opts = append(opts, review.WithBank(bank))
		}
	}

	o, err := review.New(cfg, evaluators, opts...)
	if err != nil {
		return nil, err
	}
	orch = o
	return orch, nil
}
