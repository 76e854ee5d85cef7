package internal

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sipeed/connor/pkg/agent"
	"github.com/sipeed/connor/pkg/bus"
	"github.com/sipeed/connor/pkg/commands"
	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/lifecycle"
	"github.com/sipeed/connor/pkg/llm"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/providers"
	"github.com/sipeed/connor/pkg/state"
	"github.com/sipeed/connor/pkg/storage"
	"github.com/sipeed/connor/pkg/thought"
)

const Logo = "🌱"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetConfigPath() string {
	return config.ResolveRuntimePaths().ConfigPath
}

// LoadConfig reads the config and applies its log settings.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(GetConfigPath())
	if err != nil {
		return nil, err
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			return nil, fmt.Errorf("enabling file logging: %w", err)
		}
	}
	return cfg, nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}

// Runtime is the wired agent every command runs against.
type Runtime struct {
	Config    *config.Config
	Bus       *bus.MessageBus
	Store     *storage.Store
	Log       storage.InteractionLog
	Lifecycle *lifecycle.Controller
	Agent     *agent.AgentLoop
}

// NewRuntime opens the data directory and builds the agent on top of the
// configured model backend.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	provider, model, err := providers.CreateProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	gen := llm.NewGenerator(provider, model,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRequestsPerMinute(cfg.LLM.RequestsPerMinute),
		llm.WithLabel(providerLabel(cfg.LLM.Provider)))
	return newRuntime(cfg, gen)
}

func newRuntime(cfg *config.Config, gen llm.Client) (*Runtime, error) {
	dataDir := cfg.DataPath()
	store, err := storage.NewStore(dataDir, cfg.Memory.KnowledgeKeep)
	if err != nil {
		return nil, err
	}
	log, err := storage.OpenInteractionLog(cfg.Storage.InteractionBackend, dataDir, cfg.Memory.ChatMemoryLimit)
	if err != nil {
		return nil, err
	}
	digest := knowledge.NewDigest(gen, store, log, cfg.Memory.KnowledgeCache)
	life, err := lifecycle.NewController(lifecycle.Deps{
		Config: cfg,
		Gen:    gen,
		Store:  store,
		Log:    log,
		Digest: digest,
		State:  state.NewManager(dataDir),
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("restoring lifecycle: %w", err)
	}
	engine, err := thought.NewEngine(gen, store, thought.Limits{
		Depth:     cfg.Thought.DepthLimit,
		Branch:    cfg.Thought.BranchLimit,
		Expansion: cfg.Thought.ExpansionLimit,
	}, life.Mind)
	if err != nil {
		log.Close()
		return nil, err
	}

	msgBus := bus.NewMessageBus()
	return &Runtime{
		Config:    cfg,
		Bus:       msgBus,
		Store:     store,
		Log:       log,
		Lifecycle: life,
		Agent: agent.NewAgentLoop(agent.Deps{
			Config:    cfg,
			Bus:       msgBus,
			Gen:       gen,
			Store:     store,
			Log:       log,
			Digest:    digest,
			Lifecycle: life,
			Thoughts:  engine,
		}),
	}, nil
}

func (r *Runtime) Close() {
	r.Bus.Close()
	if err := r.Log.Close(); err != nil {
		logger.WarnCF("connor", "Closing interaction log failed", map[string]any{"error": err.Error()})
	}
}

// RunChatCommand runs one "!" command against the agent and writes every
// reply to w.
func (r *Runtime) RunChatCommand(ctx context.Context, w io.Writer, text string) error {
	d := commands.NewDispatcher(commands.NewRegistry(commands.BuiltinDefinitions()))
	res := d.Dispatch(commands.WithRuntime(ctx, r.Agent), commands.Request{
		Channel:  "cli",
		SenderID: "local",
		Text:     text,
		Reply: func(reply string) error {
			_, err := fmt.Fprintln(w, reply)
			return err
		},
	})
	if !res.Handled {
		return fmt.Errorf("unknown command %q", text)
	}
	return res.Err
}

func providerLabel(name string) string {
	switch strings.ToLower(name) {
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	case "ollama":
		return "Ollama"
	default:
		return "LLM"
	}
}
