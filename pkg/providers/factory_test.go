package providers

import (
	"testing"

	anthropicprovider "github.com/sipeed/connor/pkg/providers/anthropic"
	"github.com/sipeed/connor/pkg/providers/openai_sdk"

	"github.com/sipeed/connor/pkg/config"
)

func TestCreateProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LLMConfig
		wantModel string
		wantErr   bool
		check     func(t *testing.T, p LLMProvider)
	}{
		{
			name:      "ollama default",
			cfg:       config.LLMConfig{Provider: "ollama", Model: "llama3"},
			wantModel: "llama3",
			check: func(t *testing.T, p LLMProvider) {
				if _, ok := p.(*openai_sdk.Provider); !ok {
					t.Errorf("provider type = %T, want *openai_sdk.Provider", p)
				}
			},
		},
		{
			name:      "model prefix wins over provider",
			cfg:       config.LLMConfig{Provider: "ollama", Model: "anthropic/claude-sonnet-4-5", APIKey: "k"},
			wantModel: "claude-sonnet-4-5",
			check: func(t *testing.T, p LLMProvider) {
				if _, ok := p.(*anthropicprovider.Provider); !ok {
					t.Errorf("provider type = %T, want *anthropicprovider.Provider", p)
				}
			},
		},
		{
			name:      "openai with key",
			cfg:       config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"},
			wantModel: "gpt-4o-mini",
		},
		{
			name:    "openai without key",
			cfg:     config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
			wantErr: true,
		},
		{
			name:    "anthropic without key",
			cfg:     config.LLMConfig{Provider: "claude", Model: "claude-sonnet-4-5"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     config.LLMConfig{Provider: "carrier-pigeon", Model: "coo"},
			wantErr: true,
		},
		{
			name:    "empty model",
			cfg:     config.LLMConfig{Provider: "ollama"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, model, err := CreateProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CreateProvider() expected error, got %T", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateProvider() error = %v", err)
			}
			if model != tt.wantModel {
				t.Errorf("model = %q, want %q", model, tt.wantModel)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		raw, def        string
		provider, model string
	}{
		{"ollama/llama3", "openai", "ollama", "llama3"},
		{"llama3", "", "ollama", "llama3"},
		{"gpt/gpt-4o", "", "openai", "gpt-4o"},
		{"library/custom:7b", "ollama", "ollama", "library/custom:7b"},
	}
	for _, tt := range tests {
		ref := ParseModelRef(tt.raw, tt.def)
		if ref == nil {
			t.Fatalf("ParseModelRef(%q) = nil", tt.raw)
		}
		if ref.Provider != tt.provider || ref.Model != tt.model {
			t.Errorf("ParseModelRef(%q, %q) = %+v, want %s/%s", tt.raw, tt.def, ref, tt.provider, tt.model)
		}
	}
	if ParseModelRef("  ", "ollama") != nil {
		t.Error("ParseModelRef(blank) should be nil")
	}
}
