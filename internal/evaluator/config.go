package evaluator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SamoraDC/Tetrad/internal/llm"
)

// Config selects and wires the LLM-backed evaluators.
type Config struct {
	Personas      []string
	APIKey        string
	Model         string
	RatePerMinute float64
	Burst         int
}

// DefaultConfig reads evaluator settings from viper, falling back to the
// ANTHROPIC_API_KEY environment variable for the key.
func DefaultConfig() Config {
	cfg := Config{
		Personas:      DefaultPersonas,
		APIKey:        viper.GetString("anthropic.api_key"),
		Model:         viper.GetString("anthropic.model"),
		RatePerMinute: 50,
		Burst:         5,
	}
	if list := splitList(viper.GetStringSlice("evaluators.list")); len(list) > 0 {
		cfg.Personas = list
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if v := viper.GetFloat64("evaluators.rate_per_minute"); v > 0 {
		cfg.RatePerMinute = v
	}
	if v := viper.GetInt("evaluators.burst"); v > 0 {
		cfg.Burst = v
	}
	return cfg
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks that every persona is known.
func (c Config) Validate() error {
	if len(c.Personas) == 0 {
		return errors.New("at least one evaluator is required")
	}
	var errs []error
	for _, name := range c.Personas {
		if _, ok := Personas[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown evaluator %q", name))
		}
	}
	return errors.Join(errs...)
}

// Build creates a registry of rate-limited LLM evaluators sharing one client.
func Build(cfg Config, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := llm.NewClient(cfg.APIKey, cfg.Model)
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), max(cfg.Burst, 1))

	reg, _ := NewRegistry()
	for _, name := range cfg.Personas {
		p := Personas[name]
		e := NewLLM(p, client, cfg.APIKey != "", logger)
		if err := reg.Register(RateLimited(e, limiter)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
