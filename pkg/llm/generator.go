// Package llm is the text and structured-JSON generation boundary used by
// every component that talks to a language model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/providers"
)

// DefaultSystemPrompt is Connor's voice when a caller has none of its own.
const DefaultSystemPrompt = "You are Connor, an expressive, emotionally dynamic AI who swears casually and reflects deeply on human connections."

// Generator wraps a provider with pacing and the failure conventions of
// the generation boundary: text failures become placeholder strings and
// structured failures become errors the caller turns into defaults.
type Generator struct {
	provider    providers.LLMProvider
	model       string
	label       string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
}

type Option func(*Generator)

func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithRequestsPerMinute paces calls. Zero or less disables pacing.
func WithRequestsPerMinute(rpm int) Option {
	return func(g *Generator) {
		if rpm > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		} else {
			g.limiter = nil
		}
	}
}

// WithLabel sets the backend name shown in failure placeholders.
func WithLabel(label string) Option {
	return func(g *Generator) {
		if label != "" {
			g.label = label
		}
	}
}

func NewGenerator(provider providers.LLMProvider, model string, opts ...Option) *Generator {
	g := &Generator{
		provider:    provider,
		model:       model,
		label:       "LLM",
		temperature: 0.8,
		maxTokens:   1024,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the model's reply. Failures come back as a short
// "[<Backend> Error] ..." string, never as an error.
func (g *Generator) Generate(ctx context.Context, prompt, system string) string {
	text, err := g.complete(ctx, prompt, system)
	if err != nil {
		logger.WarnCF("llm", "Generation failed", map[string]any{"error": err.Error()})
		return fmt.Sprintf("[%s Error] %v", g.label, err)
	}
	return text
}

// GenerateStructured decodes the model's JSON reply into v. On error v is
// left untouched.
func (g *Generator) GenerateStructured(ctx context.Context, prompt, system string, v any) error {
	text, err := g.complete(ctx, prompt, system)
	if err != nil {
		return err
	}
	payload := extractJSON(text)
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		logger.DebugCF("llm", "Malformed structured response", map[string]any{
			"error":   err.Error(),
			"preview": preview(text, 120),
		})
		return fmt.Errorf("llm: malformed structured response: %w", err)
	}
	return nil
}

// GenerateJSON is the parse-or-default form of GenerateStructured.
func GenerateJSON[T any](ctx context.Context, g StructuredGenerator, prompt, system string, def T) T {
	var out T
	if err := g.GenerateStructured(ctx, prompt, system, &out); err != nil {
		return def
	}
	return out
}

// TextGenerator is the text half of the boundary.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, system string) string
}

// StructuredGenerator is the structured half of the boundary.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt, system string, v any) error
}

// Client is both halves.
type Client interface {
	TextGenerator
	StructuredGenerator
}

func (g *Generator) complete(ctx context.Context, prompt, system string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if system == "" {
		system = DefaultSystemPrompt
	}
	messages := []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}
	resp, err := g.provider.Chat(ctx, messages, g.model, map[string]any{
		"temperature": g.temperature,
		"max_tokens":  g.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// extractJSON strips Markdown code fences and any prose around the first
// JSON value in s.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
