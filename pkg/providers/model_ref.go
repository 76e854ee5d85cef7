package providers

import "strings"

// ModelRef represents a parsed model reference with provider and model name.
type ModelRef struct {
	Provider string
	Model    string
}

// ParseModelRef parses "anthropic/claude-sonnet-4-5" into
// {Provider: "anthropic", Model: "claude-sonnet-4-5"}.
// If no known provider prefix is present, defaultProvider is used.
// Returns nil for empty input.
func ParseModelRef(raw string, defaultProvider string) *ModelRef {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if idx := strings.Index(raw, "/"); idx > 0 {
		prefix := strings.TrimSpace(raw[:idx])
		model := strings.TrimSpace(raw[idx+1:])
		if model == "" {
			return nil
		}
		if isKnownProviderPrefix(prefix) {
			return &ModelRef{Provider: NormalizeProvider(prefix), Model: model}
		}
	}

	return &ModelRef{
		Provider: NormalizeProvider(defaultProvider),
		Model:    raw,
	}
}

var knownProviderPrefixes = map[string]struct{}{
	"openai":    {},
	"anthropic": {},
	"ollama":    {},
	"vllm":      {},
}

func isKnownProviderPrefix(prefix string) bool {
	_, ok := knownProviderPrefixes[NormalizeProvider(prefix)]
	return ok
}

// NormalizeProvider normalizes provider identifiers to canonical form.
func NormalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))

	switch p {
	case "gpt":
		return "openai"
	case "claude":
		return "anthropic"
	case "":
		return "ollama"
	}

	return p
}
