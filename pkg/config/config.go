package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Aging     AgingConfig     `json:"aging" yaml:"aging"`
	Lifecycle LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Thought   ThoughtConfig   `json:"thought" yaml:"thought"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	Log       LogConfig       `json:"log" yaml:"log"`
	mu        sync.RWMutex
}

type LLMConfig struct {
	Provider          string  `json:"provider" yaml:"provider" env:"CONNOR_LLM_PROVIDER"`
	Model             string  `json:"model" yaml:"model" env:"CONNOR_LLM_MODEL"`
	APIKey            string  `json:"api_key" yaml:"api_key" env:"CONNOR_LLM_API_KEY"`
	BaseURL           string  `json:"base_url" yaml:"base_url" env:"CONNOR_LLM_BASE_URL"`
	Temperature       float64 `json:"temperature" yaml:"temperature" env:"CONNOR_LLM_TEMPERATURE"`
	MaxTokens         int     `json:"max_tokens" yaml:"max_tokens" env:"CONNOR_LLM_MAX_TOKENS"`
	RequestTimeout    int     `json:"request_timeout" yaml:"request_timeout" env:"CONNOR_LLM_REQUEST_TIMEOUT"`             // seconds
	RequestsPerMinute int     `json:"requests_per_minute" yaml:"requests_per_minute" env:"CONNOR_LLM_REQUESTS_PER_MINUTE"` // 0 = unlimited
}

type AgingConfig struct {
	InitialAge        int     `json:"initial_age" yaml:"initial_age" env:"CONNOR_AGING_INITIAL_AGE"`
	RebirthAge        int     `json:"rebirth_age" yaml:"rebirth_age" env:"CONNOR_AGING_REBIRTH_AGE"`
	AgeIncrementHours float64 `json:"age_increment_hours" yaml:"age_increment_hours" env:"CONNOR_AGING_AGE_INCREMENT_HOURS"`
	EndCycle          int     `json:"end_cycle" yaml:"end_cycle" env:"CONNOR_AGING_END_CYCLE"`
}

// AgeIncrement is the wall-clock time it takes to age by one year.
func (a AgingConfig) AgeIncrement() time.Duration {
	return time.Duration(a.AgeIncrementHours * float64(time.Hour))
}

type LifecycleConfig struct {
	AgeCheckInterval       int `json:"age_check_interval" yaml:"age_check_interval" env:"CONNOR_LIFECYCLE_AGE_CHECK_INTERVAL"`             // minutes
	NeglectCheckInterval   int `json:"neglect_check_interval" yaml:"neglect_check_interval" env:"CONNOR_LIFECYCLE_NEGLECT_CHECK_INTERVAL"` // minutes
	RebirthWatchInterval   int `json:"rebirth_watch_interval" yaml:"rebirth_watch_interval" env:"CONNOR_LIFECYCLE_REBIRTH_WATCH_INTERVAL"` // minutes
	NeglectSilence         int `json:"neglect_silence" yaml:"neglect_silence" env:"CONNOR_LIFECYCLE_NEGLECT_SILENCE"`                      // minutes
	DepressiveHitThreshold int `json:"depressive_hit_threshold" yaml:"depressive_hit_threshold" env:"CONNOR_LIFECYCLE_DEPRESSIVE_HIT_THRESHOLD"`
}

type MemoryConfig struct {
	SummaryInterval    int `json:"summary_interval" yaml:"summary_interval" env:"CONNOR_MEMORY_SUMMARY_INTERVAL"`
	ChatMemoryLimit    int `json:"chat_memory_limit" yaml:"chat_memory_limit" env:"CONNOR_MEMORY_CHAT_MEMORY_LIMIT"`
	RecentHistoryLimit int `json:"recent_history_limit" yaml:"recent_history_limit" env:"CONNOR_MEMORY_RECENT_HISTORY_LIMIT"`
	KnowledgeKeep      int `json:"knowledge_keep" yaml:"knowledge_keep" env:"CONNOR_MEMORY_KNOWLEDGE_KEEP"`
	KnowledgeCache     int `json:"knowledge_cache" yaml:"knowledge_cache" env:"CONNOR_MEMORY_KNOWLEDGE_CACHE"`
}

type ThoughtConfig struct {
	DepthLimit         int `json:"depth_limit" yaml:"depth_limit" env:"CONNOR_THOUGHT_DEPTH_LIMIT"`
	BranchLimit        int `json:"branch_limit" yaml:"branch_limit" env:"CONNOR_THOUGHT_BRANCH_LIMIT"`
	ExpansionLimit     int `json:"expansion_limit" yaml:"expansion_limit" env:"CONNOR_THOUGHT_EXPANSION_LIMIT"`
	RecentLimit        int `json:"recent_limit" yaml:"recent_limit" env:"CONNOR_THOUGHT_RECENT_LIMIT"`
	BrainstormBranches int `json:"brainstorm_branches" yaml:"brainstorm_branches" env:"CONNOR_THOUGHT_BRAINSTORM_BRANCHES"`
}

type StorageConfig struct {
	DataDir            string `json:"data_dir" yaml:"data_dir" env:"CONNOR_STORAGE_DATA_DIR"`
	InteractionBackend string `json:"interaction_backend" yaml:"interaction_backend" env:"CONNOR_STORAGE_INTERACTION_BACKEND"` // json | sqlite
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord" yaml:"discord"`
}

type DiscordConfig struct {
	Enabled            bool                `json:"enabled" yaml:"enabled" env:"CONNOR_CHANNELS_DISCORD_ENABLED"`
	Token              string              `json:"token" yaml:"token" env:"CONNOR_CHANNELS_DISCORD_TOKEN"`
	AllowFrom          FlexibleStringSlice `json:"allow_from" yaml:"allow_from" env:"CONNOR_CHANNELS_DISCORD_ALLOW_FROM"`
	MainChannelID      string              `json:"main_channel_id" yaml:"main_channel_id" env:"CONNOR_CHANNELS_DISCORD_MAIN_CHANNEL_ID"`
	ThoughtsChannelID  string              `json:"thoughts_channel_id" yaml:"thoughts_channel_id" env:"CONNOR_CHANNELS_DISCORD_THOUGHTS_CHANNEL_ID"`
	BeliefsChannelID   string              `json:"beliefs_channel_id" yaml:"beliefs_channel_id" env:"CONNOR_CHANNELS_DISCORD_BELIEFS_CHANNEL_ID"`
	KnowledgeChannelID string              `json:"knowledge_channel_id" yaml:"knowledge_channel_id" env:"CONNOR_CHANNELS_DISCORD_KNOWLEDGE_CHANNEL_ID"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"CONNOR_LOG_LEVEL"`
	File  string `json:"file" yaml:"file" env:"CONNOR_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "ollama",
			Model:             "llama3",
			BaseURL:           "http://localhost:11434/v1",
			Temperature:       0.8,
			MaxTokens:         1024,
			RequestTimeout:    120,
			RequestsPerMinute: 30,
		},
		Aging: AgingConfig{
			InitialAge:        37,
			RebirthAge:        10,
			AgeIncrementHours: 0.5,
			EndCycle:          80,
		},
		Lifecycle: LifecycleConfig{
			AgeCheckInterval:       10,
			NeglectCheckInterval:   5,
			RebirthWatchInterval:   1,
			NeglectSilence:         10,
			DepressiveHitThreshold: 50,
		},
		Memory: MemoryConfig{
			SummaryInterval:    40,
			ChatMemoryLimit:    50,
			RecentHistoryLimit: 8,
			KnowledgeKeep:      10,
			KnowledgeCache:     5,
		},
		Thought: ThoughtConfig{
			DepthLimit:         10,
			BranchLimit:        8,
			ExpansionLimit:     5,
			RecentLimit:        5,
			BrainstormBranches: 3,
		},
		Storage: StorageConfig{
			DataDir:            "~/.connor/data",
			InteractionBackend: "json",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads path on top of DefaultConfig, then applies .env and CONNOR_* overrides.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional; existing environment variables win.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate rejects settings the lifecycle cannot run with.
func (c *Config) Validate() error {
	if c.Aging.AgeIncrementHours <= 0 {
		return fmt.Errorf("aging.age_increment_hours must be positive")
	}
	if c.Aging.EndCycle <= c.Aging.RebirthAge {
		return fmt.Errorf("aging.end_cycle (%d) must exceed aging.rebirth_age (%d)", c.Aging.EndCycle, c.Aging.RebirthAge)
	}
	if c.Thought.BranchLimit < 1 || c.Thought.ExpansionLimit < 1 {
		return fmt.Errorf("thought.branch_limit and thought.expansion_limit must be at least 1")
	}
	if c.Thought.DepthLimit < 0 {
		return fmt.Errorf("thought.depth_limit must not be negative")
	}
	switch c.Storage.InteractionBackend {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("storage.interaction_backend %q not supported", c.Storage.InteractionBackend)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.DataDir)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
