package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRuntimePaths_Default(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConnorConfig, "")
	t.Setenv(EnvConnorHome, "")

	paths := ResolveRuntimePaths()
	want := filepath.Join(home, ".connor")
	assert.Equal(t, RuntimePaths{
		HomeDir:    want,
		ConfigPath: filepath.Join(want, "config.json"),
		LogPath:    filepath.Join(want, "logs", "connor.log"),
	}, paths)
}

func TestResolveRuntimePaths_ConfigFormat(t *testing.T) {
	cases := map[string]struct {
		present []string
		want    string
	}{
		"nothing written yet": {nil, "config.json"},
		"yaml only":           {[]string{"config.yaml"}, "config.yaml"},
		"yml only":            {[]string{"config.yml"}, "config.yml"},
		"yaml before yml":     {[]string{"config.yml", "config.yaml"}, "config.yaml"},
		"json wins":           {[]string{"config.yaml", "config.json"}, "config.json"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			home := t.TempDir()
			for _, f := range tc.present {
				require.NoError(t, os.WriteFile(filepath.Join(home, f), []byte("aging: {}\n"), 0o600))
			}
			t.Setenv(EnvConnorConfig, "")
			t.Setenv(EnvConnorHome, home)

			paths := ResolveRuntimePaths()
			assert.Equal(t, home, paths.HomeDir)
			assert.Equal(t, filepath.Join(home, tc.want), paths.ConfigPath)
		})
	}
}

func TestResolveRuntimePaths_ConfigOverrideTakesPrecedence(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "connor-elsewhere")
	configPath := filepath.Join(configDir, "connor.yaml")
	t.Setenv(EnvConnorHome, filepath.Join(t.TempDir(), "ignored"))
	t.Setenv(EnvConnorConfig, configPath)

	paths := ResolveRuntimePaths()
	assert.Equal(t, configDir, paths.HomeDir)
	assert.Equal(t, configPath, paths.ConfigPath)
	assert.Equal(t, filepath.Join(configDir, "logs", "connor.log"), paths.LogPath)
}

func TestResolveRuntimePaths_ExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConnorConfig, "")
	t.Setenv(EnvConnorHome, " ~/agents/connor ")

	paths := ResolveRuntimePaths()
	assert.Equal(t, filepath.Join(home, "agents", "connor"), paths.HomeDir)
}
