package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SamoraDC/Tetrad/internal/output"
)

// withConfigDir points config commands and viper defaults at a fresh temp
// dir and captures UI output. The returned buffer holds stdout and stderr.
func withConfigDir(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	prevDir := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }

	viper.Reset()
	setDefaults(dir)

	var out bytes.Buffer
	ui = &output.UI{Out: &out, ErrOut: &out}
	configForce, dryRun = false, false

	t.Cleanup(func() {
		configDirFunc = prevDir
		configForce, dryRun = false, false
		viper.Reset()
	})
	return dir, &out
}

func TestConfigInit(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		force    bool
		dryRun   bool
		wantErr  string
		wantFile bool
	}{
		{name: "fresh dir", wantFile: true},
		{name: "existing file is kept", existing: "consensus:\n  rule: weak\n", wantErr: "already exists"},
		{name: "force overwrites", existing: "consensus:\n  rule: weak\n", force: true, wantFile: true},
		{name: "dry run writes nothing", dryRun: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, out := withConfigDir(t)
			cfgPath := filepath.Join(dir, "config.yaml")
			if tt.existing != "" {
				require.NoError(t, os.WriteFile(cfgPath, []byte(tt.existing), 0o644))
			}
			configForce = tt.force
			dryRun = tt.dryRun
			ui.DryRun = tt.dryRun

			err := configInitRun()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				data, _ := os.ReadFile(cfgPath)
				assert.Equal(t, tt.existing, string(data))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), "tetrad configuration")

			data, err := os.ReadFile(cfgPath)
			if !tt.wantFile {
				assert.True(t, os.IsNotExist(err), "dry run must not create %s", cfgPath)
				return
			}
			require.NoError(t, err)
			body := string(data)
			assert.Contains(t, body, `rule: "strong"`)
			assert.Contains(t, body, "min_score: 70")
			assert.Contains(t, body, "list: [syntax, architecture, logic]")
			assert.Contains(t, body, filepath.Join(dir, "tetrad.db"))
		})
	}
}

func TestConfigInit_ReadsBackDefaults(t *testing.T) {
	dir, _ := withConfigDir(t)
	require.NoError(t, configInitRun())

	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())

	assert.Equal(t, "strong", viper.GetString("consensus.rule"))
	assert.Equal(t, 70, viper.GetInt("consensus.min_score"))
	assert.Equal(t, 100, viper.GetInt("cache.capacity"))
	assert.Equal(t, []string{"syntax", "architecture", "logic"}, viper.GetStringSlice("evaluators.list"))
}

func TestConfigShow_Sources(t *testing.T) {
	dir, out := withConfigDir(t)

	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), "Config file: (none)")
	assert.Contains(t, out.String(), "consensus.rule")
	assert.Contains(t, out.String(), "(default)")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cache:\n  capacity: 25\n"), 0o644))
	t.Setenv("TETRAD_CONSENSUS_RULE", "golden")
	out.Reset()

	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), "(file)")
	assert.Contains(t, out.String(), "(env: TETRAD_CONSENSUS_RULE)")
}

func TestConfigEdit(t *testing.T) {
	t.Run("no editor", func(t *testing.T) {
		withConfigDir(t)
		t.Setenv("EDITOR", "")
		t.Setenv("VISUAL", "")

		err := configEditRun()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "$EDITOR is not set")
	})

	t.Run("no config file", func(t *testing.T) {
		withConfigDir(t)
		t.Setenv("EDITOR", "true")

		err := configEditRun()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tetrad config init")
	})
}

func TestDetectSource(t *testing.T) {
	inFile := map[string]bool{"cache.ttl": true}
	t.Setenv("TETRAD_CONSENSUS_MIN_SCORE", "80")

	assert.Equal(t, "(env: TETRAD_CONSENSUS_MIN_SCORE)", detectSource("consensus.min_score", "TETRAD_CONSENSUS_MIN_SCORE", inFile))
	assert.Equal(t, "(file)", detectSource("cache.ttl", "TETRAD_CACHE_TTL_UNSET", inFile))
	assert.Equal(t, "(default)", detectSource("cache.capacity", "TETRAD_CACHE_CAPACITY_UNSET", inFile))
}

func TestFlattenKeys(t *testing.T) {
	got := make(map[string]bool)
	flattenKeys("", map[string]any{
		"state_dir": "/tmp/tetrad",
		"consensus": map[string]any{"rule": "weak", "min_score": 60},
	}, got)

	assert.Equal(t, map[string]bool{
		"state_dir":           true,
		"consensus.rule":      true,
		"consensus.min_score": true,
	}, got)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger("warn", "json", &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", zap.String("phase", "judge"))
	require.NoError(t, l.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"phase":"judge"`)

	_, err = newLogger("loud", "json", &buf)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err)
}
