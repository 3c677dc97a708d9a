package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tetrad"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage tetrad configuration.

Running bare 'tetrad config' is the same as 'tetrad config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# tetrad configuration
# See: tetrad config show (for effective values and sources)

# State/data directory (default: ~/.config/tetrad)
# state_dir: {{ .StateDir }}

# Logging (written to stderr)
log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
  # console or json
  format: "{{ .LogFormat }}"

# Consensus
consensus:
  # golden (every vote passes), strong (two thirds pass, dissent close to the bar)
  # or weak (simple majority)
  rule: "{{ .Rule }}"
  # Score a submission needs to pass (0-100)
  min_score: {{ .MinScore }}
  # Refinement loops allowed before a REVISE stops being retryable
  max_loops: {{ .MaxLoops }}

# Pattern learning
reasoning:
  enabled: {{ .ReasoningEnabled }}
  # SQLite database path (default: ~/.config/tetrad/tetrad.db)
  db_path: "{{ .DBPath }}"
  # Patterns handed to evaluators per request
  max_patterns: {{ .MaxPatterns }}
  # Consolidate the pattern store every N evaluations
  consolidation_interval: {{ .ConsolidationInterval }}

# Result cache
cache:
  enabled: {{ .CacheEnabled }}
  capacity: {{ .CacheCapacity }}
  ttl: "{{ .CacheTTL }}"

# Evaluators
evaluators:
  # Per-evaluator timeout
  timeout: "{{ .EvaluatorTimeout }}"
  # Reviewer personas: syntax, architecture, logic
  list: [{{ .Evaluators }}]

# Anthropic API (api_key falls back to ANTHROPIC_API_KEY)
anthropic:
  model: "{{ .Model }}"
`

type configTemplateData struct {
	StateDir              string
	LogLevel              string
	LogFormat             string
	Rule                  string
	MinScore              int
	MaxLoops              int
	ReasoningEnabled      bool
	DBPath                string
	MaxPatterns           int
	ConsolidationInterval int
	CacheEnabled          bool
	CacheCapacity         int
	CacheTTL              string
	EvaluatorTimeout      string
	Evaluators            string
	Model                 string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:              viper.GetString("state_dir"),
		LogLevel:              viper.GetString("log.level"),
		LogFormat:             viper.GetString("log.format"),
		Rule:                  viper.GetString("consensus.rule"),
		MinScore:              viper.GetInt("consensus.min_score"),
		MaxLoops:              viper.GetInt("consensus.max_loops"),
		ReasoningEnabled:      viper.GetBool("reasoning.enabled"),
		DBPath:                viper.GetString("reasoning.db_path"),
		MaxPatterns:           viper.GetInt("reasoning.max_patterns"),
		ConsolidationInterval: viper.GetInt("reasoning.consolidation_interval"),
		CacheEnabled:          viper.GetBool("cache.enabled"),
		CacheCapacity:         viper.GetInt("cache.capacity"),
		CacheTTL:              viper.GetString("cache.ttl"),
		EvaluatorTimeout:      viper.GetString("evaluators.timeout"),
		Evaluators:            strings.Join(viper.GetStringSlice("evaluators.list"), ", "),
		Model:                 viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "TETRAD_STATE_DIR"},
	{Key: "log.level", EnvVar: "TETRAD_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "TETRAD_LOG_FORMAT"},
	{Key: "consensus.rule", EnvVar: "TETRAD_CONSENSUS_RULE"},
	{Key: "consensus.min_score", EnvVar: "TETRAD_CONSENSUS_MIN_SCORE"},
	{Key: "consensus.max_loops", EnvVar: "TETRAD_CONSENSUS_MAX_LOOPS"},
	{Key: "consensus.high_confidence_band", EnvVar: "TETRAD_CONSENSUS_HIGH_CONFIDENCE_BAND"},
	{Key: "reasoning.enabled", EnvVar: "TETRAD_REASONING_ENABLED"},
	{Key: "reasoning.db_path", EnvVar: "TETRAD_REASONING_DB_PATH"},
	{Key: "reasoning.max_patterns", EnvVar: "TETRAD_REASONING_MAX_PATTERNS"},
	{Key: "reasoning.consolidation_interval", EnvVar: "TETRAD_REASONING_CONSOLIDATION_INTERVAL"},
	{Key: "reasoning.success_loop_threshold", EnvVar: "TETRAD_REASONING_SUCCESS_LOOP_THRESHOLD"},
	{Key: "cache.enabled", EnvVar: "TETRAD_CACHE_ENABLED"},
	{Key: "cache.capacity", EnvVar: "TETRAD_CACHE_CAPACITY"},
	{Key: "cache.ttl", EnvVar: "TETRAD_CACHE_TTL"},
	{Key: "evaluators.timeout", EnvVar: "TETRAD_EVALUATORS_TIMEOUT"},
	{Key: "evaluators.list", EnvVar: "TETRAD_EVALUATORS_LIST"},
	{Key: "evaluators.rate_per_minute", EnvVar: "TETRAD_EVALUATORS_RATE_PER_MINUTE"},
	{Key: "evaluators.burst", EnvVar: "TETRAD_EVALUATORS_BURST"},
	{Key: "anthropic.model", EnvVar: "TETRAD_ANTHROPIC_MODEL"},
	{Key: "metrics.addr", EnvVar: "TETRAD_METRICS_ADDR"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-36s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'tetrad config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
