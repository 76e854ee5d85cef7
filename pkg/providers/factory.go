package providers

import (
	"fmt"
	"time"

	anthropicprovider "github.com/sipeed/connor/pkg/providers/anthropic"
	"github.com/sipeed/connor/pkg/providers/openai_sdk"

	"github.com/sipeed/connor/pkg/config"
)

const (
	defaultOllamaAPIBase = "http://localhost:11434/v1"
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
)

// CreateProvider builds the chat backend named by cfg and returns it with
// the resolved model id.
func CreateProvider(cfg config.LLMConfig) (LLMProvider, string, error) {
	ref := ParseModelRef(cfg.Model, cfg.Provider)
	if ref == nil {
		return nil, "", fmt.Errorf("no model configured")
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second

	switch ref.Provider {
	case "ollama", "vllm":
		base := cfg.BaseURL
		if base == "" {
			base = defaultOllamaAPIBase
		}
		p := openai_sdk.NewProvider(cfg.APIKey, base,
			openai_sdk.WithRequestTimeout(timeout),
			openai_sdk.WithDefaultModel(ref.Model))
		return p, ref.Model, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, "", fmt.Errorf("no API key configured for provider: openai")
		}
		base := cfg.BaseURL
		if base == "" {
			base = defaultOpenAIAPIBase
		}
		p := openai_sdk.NewProvider(cfg.APIKey, base,
			openai_sdk.WithRequestTimeout(timeout),
			openai_sdk.WithDefaultModel(ref.Model))
		return p, ref.Model, nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, "", fmt.Errorf("no API key configured for provider: anthropic")
		}
		return anthropicprovider.NewProviderWithBaseURL(cfg.APIKey, cfg.BaseURL), ref.Model, nil
	default:
		return nil, "", fmt.Errorf("unknown provider: %s", ref.Provider)
	}
}
