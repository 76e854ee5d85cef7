package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvConnorConfig = "CONNOR_CONFIG"
	EnvConnorHome   = "CONNOR_HOME"
)

type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
	LogPath    string
}

// ResolveRuntimePaths honours CONNOR_CONFIG first, then CONNOR_HOME, then ~/.connor.
func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvConnorConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvConnorHome)))
	if homeDir == "" {
		homeDir = defaultConnorHome()
	}

	return buildRuntimePaths(homeDir, resolveConfigIn(homeDir))
}

// resolveConfigIn picks config.json, config.yaml or config.yml in that
// order, falling back to config.json when dir has none of them.
func resolveConfigIn(dir string) string {
	jsonPath := filepath.Join(dir, "config.json")
	for _, candidate := range []string{jsonPath, filepath.Join(dir, "config.yaml"), filepath.Join(dir, "config.yml")} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return jsonPath
}

func defaultConnorHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".connor"
	}
	return filepath.Join(home, ".connor")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:    homeDir,
		ConfigPath: configPath,
		LogPath:    filepath.Join(homeDir, "logs", "connor.log"),
	}
}
