package reasoning

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds ReasoningBank tuning.
type Config struct {
	MaxPatterns              int
	ConsolidationInterval    int
	SuccessLoopThreshold     int
	TopN                     int
	PruneMinObservations     int
	PruneMaxConfidence       float64
	PruneMinAge              time.Duration
	ReinforceMinObservations int
	ReinforceMinConfidence   float64
	MergeSimilarity          float64
}

// DefaultConfig returns the ReasoningBank config, reading from viper when available.
func DefaultConfig() Config {
	cfg := Config{
		MaxPatterns:              10,
		ConsolidationInterval:    100,
		SuccessLoopThreshold:     2,
		TopN:                     10,
		PruneMinObservations:     3,
		PruneMaxConfidence:       0.3,
		PruneMinAge:              30 * 24 * time.Hour,
		ReinforceMinObservations: 10,
		ReinforceMinConfidence:   0.7,
		MergeSimilarity:          0.8,
	}

	if v := viper.GetInt("reasoning.max_patterns"); v > 0 {
		cfg.MaxPatterns = v
	}
	if v := viper.GetInt("reasoning.consolidation_interval"); v > 0 {
		cfg.ConsolidationInterval = v
	}
	if viper.IsSet("reasoning.success_loop_threshold") {
		cfg.SuccessLoopThreshold = viper.GetInt("reasoning.success_loop_threshold")
	}
	if v := viper.GetInt("reasoning.prune_min_observations"); v > 0 {
		cfg.PruneMinObservations = v
	}
	if viper.IsSet("reasoning.prune_max_confidence") {
		cfg.PruneMaxConfidence = viper.GetFloat64("reasoning.prune_max_confidence")
	}
	if viper.IsSet("reasoning.prune_min_age") {
		cfg.PruneMinAge = viper.GetDuration("reasoning.prune_min_age")
	}
	if v := viper.GetInt("reasoning.reinforce_min_observations"); v > 0 {
		cfg.ReinforceMinObservations = v
	}
	if viper.IsSet("reasoning.reinforce_min_confidence") {
		cfg.ReinforceMinConfidence = viper.GetFloat64("reasoning.reinforce_min_confidence")
	}
	if viper.IsSet("reasoning.merge_similarity") {
		cfg.MergeSimilarity = viper.GetFloat64("reasoning.merge_similarity")
	}
	return cfg
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.MaxPatterns < 1:
		return fmt.Errorf("reasoning.max_patterns must be at least 1, got %d", c.MaxPatterns)
	case c.ConsolidationInterval < 1:
		return fmt.Errorf("reasoning.consolidation_interval must be at least 1, got %d", c.ConsolidationInterval)
	case c.SuccessLoopThreshold < 1:
		return fmt.Errorf("reasoning.success_loop_threshold must be at least 1, got %d", c.SuccessLoopThreshold)
	case c.PruneMaxConfidence < 0 || c.PruneMaxConfidence > 1:
		return fmt.Errorf("reasoning.prune_max_confidence must be within [0, 1], got %g", c.PruneMaxConfidence)
	case c.ReinforceMinConfidence < 0 || c.ReinforceMinConfidence > 1:
		return fmt.Errorf("reasoning.reinforce_min_confidence must be within [0, 1], got %g", c.ReinforceMinConfidence)
	case c.MergeSimilarity <= 0 || c.MergeSimilarity > 1:
		return fmt.Errorf("reasoning.merge_similarity must be within (0, 1], got %g", c.MergeSimilarity)
	case c.PruneMinAge < 0:
		return fmt.Errorf("reasoning.prune_min_age must not be negative, got %s", c.PruneMinAge)
	}
	return nil
}
