package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_LifecycleDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 37, cfg.Aging.InitialAge)
	assert.Equal(t, 10, cfg.Aging.RebirthAge)
	assert.Equal(t, 80, cfg.Aging.EndCycle)
	assert.Equal(t, 30*time.Minute, cfg.Aging.AgeIncrement())
	assert.Equal(t, 10, cfg.Lifecycle.NeglectSilence)
	assert.Equal(t, 40, cfg.Memory.SummaryInterval)
	assert.Equal(t, 50, cfg.Memory.ChatMemoryLimit)
}

func TestDefaultConfig_ThoughtLimits(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Thought.DepthLimit)
	assert.Equal(t, 8, cfg.Thought.BranchLimit)
	assert.Equal(t, 5, cfg.Thought.ExpansionLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Aging, cfg.Aging)
}

func TestLoadConfig_JSONOverlaysDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"aging": {"initial_age": 20, "end_cycle": 60},
		"channels": {"discord": {"allow_from": [123, "@travis"]}}
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Aging.InitialAge)
	assert.Equal(t, 60, cfg.Aging.EndCycle)
	assert.Equal(t, 0.5, cfg.Aging.AgeIncrementHours, "unset keys keep defaults")
	assert.Equal(t, FlexibleStringSlice{"123", "@travis"}, cfg.Channels.Discord.AllowFrom)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
thought:
  depth_limit: 4
  branch_limit: 3
  expansion_limit: 2
storage:
  interaction_backend: sqlite
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Thought.DepthLimit)
	assert.Equal(t, 3, cfg.Thought.BranchLimit)
	assert.Equal(t, "sqlite", cfg.Storage.InteractionBackend)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"llm": {"model": "from-file"}}`), 0o600))
	t.Setenv("CONNOR_LLM_MODEL", "from-env")
	t.Setenv("CONNOR_AGING_END_CYCLE", "90")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 90, cfg.Aging.EndCycle)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONNOR_LLM_PROVIDER=anthropic\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CONNOR_LLM_PROVIDER") })

	cfg, err := LoadConfig(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-positive increment", func(c *Config) { c.Aging.AgeIncrementHours = 0 }},
		{"end cycle below rebirth", func(c *Config) { c.Aging.EndCycle = 5 }},
		{"zero branch limit", func(c *Config) { c.Thought.BranchLimit = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.InteractionBackend = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Channels.Discord.MainChannelID = "42"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.Channels.Discord.MainChannelID)
}
