package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SamoraDC/Tetrad/internal/cache"
	"github.com/SamoraDC/Tetrad/internal/consensus"
)

// Config holds orchestrator configuration.
type Config struct {
	Rule               consensus.Rule
	MinScore           int
	MaxLoops           int
	HighConfidenceBand int
	EvaluatorTimeout   time.Duration
	CacheEnabled       bool
	CacheCapacity      int
	CacheTTL           time.Duration
	ReasoningEnabled   bool
}

// DefaultConfig returns the default orchestrator config, reading from viper when available.
func DefaultConfig() Config {
	cfg := Config{
		Rule:               consensus.RuleStrong,
		MinScore:           70,
		MaxLoops:           3,
		HighConfidenceBand: consensus.DefaultHighConfidenceBand,
		EvaluatorTimeout:   60 * time.Second,
		CacheEnabled:       true,
		CacheCapacity:      cache.DefaultCapacity,
		CacheTTL:           cache.DefaultTTL,
		ReasoningEnabled:   true,
	}

	if v := viper.GetString("consensus.rule"); v != "" {
		cfg.Rule = consensus.Rule(strings.ToLower(strings.TrimSpace(v)))
	}
	if viper.IsSet("consensus.min_score") {
		cfg.MinScore = viper.GetInt("consensus.min_score")
	}
	if v := viper.GetInt("consensus.max_loops"); v > 0 {
		cfg.MaxLoops = v
	}
	if viper.IsSet("consensus.high_confidence_band") {
		cfg.HighConfidenceBand = viper.GetInt("consensus.high_confidence_band")
	}
	if v := viper.GetDuration("evaluators.timeout"); v > 0 {
		cfg.EvaluatorTimeout = v
	}
	if viper.IsSet("cache.enabled") {
		cfg.CacheEnabled = viper.GetBool("cache.enabled")
	}
	if v := viper.GetInt("cache.capacity"); v > 0 {
		cfg.CacheCapacity = v
	}
	if viper.IsSet("cache.ttl") {
		cfg.CacheTTL = viper.GetDuration("cache.ttl")
	}
	if viper.IsSet("reasoning.enabled") {
		cfg.ReasoningEnabled = viper.GetBool("reasoning.enabled")
	}
	return cfg
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case !c.Rule.Valid():
		return fmt.Errorf("consensus.rule: %w: %q", consensus.ErrUnknownRule, c.Rule)
	case c.MinScore < 0 || c.MinScore > 100:
		return fmt.Errorf("consensus.min_score must be within [0, 100], got %d", c.MinScore)
	case c.MaxLoops < 1:
		return fmt.Errorf("consensus.max_loops must be at least 1, got %d", c.MaxLoops)
	case c.HighConfidenceBand < 0:
		return fmt.Errorf("consensus.high_confidence_band must not be negative, got %d", c.HighConfidenceBand)
	case c.EvaluatorTimeout <= 0:
		return fmt.Errorf("evaluators.timeout must be positive, got %s", c.EvaluatorTimeout)
	case c.CacheEnabled && c.CacheCapacity < 1:
		return fmt.Errorf("cache.capacity must be at least 1, got %d", c.CacheCapacity)
	case c.CacheTTL < 0:
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.CacheTTL)
	}
	return nil
}

// NewCache builds the result cache described by c, or nil when caching is off.
func (c Config) NewCache() (*cache.Cache, error) {
	if !c.CacheEnabled {
		return nil, nil
	}
	return cache.New(c.CacheCapacity, c.CacheTTL)
}
