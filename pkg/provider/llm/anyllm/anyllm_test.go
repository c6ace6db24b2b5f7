package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/narrator/pkg/provider/llm"
)

// ── Message conversion ────────────────────────────────────────────────────────

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		name string
		in   llm.Message
		role string
	}{
		{"system", llm.SystemMessage("be terse"), "system"},
		{"user", llm.UserMessage("hello"), "user"},
		{"assistant", llm.Message{Role: llm.RoleAssistant, Content: "hi"}, "assistant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertMessage(tt.in)
			if got.Role != tt.role {
				t.Errorf("Role = %q, want %q", got.Role, tt.role)
			}
			if got.ContentString() != tt.in.Content {
				t.Errorf("Content = %q, want %q", got.ContentString(), tt.in.Content)
			}
		})
	}
}

// ── Params ────────────────────────────────────────────────────────────────────

func TestBuildParams_ModelOverrideAndSampling(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{
		Model:            "llama3:70b",
		Messages:         []llm.Message{llm.SystemMessage("s"), llm.UserMessage("u")},
		Temperature:      0.5,
		FrequencyPenalty: 2,
		MaxTokens:        200,
	})
	if params.Model != "llama3:70b" {
		t.Errorf("Model = %q, want llama3:70b", params.Model)
	}
	if params.Temperature == nil || *params.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 200 {
		t.Errorf("MaxTokens = %v, want 200", params.MaxTokens)
	}
	if len(params.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(params.Messages))
	}
}

func TestBuildParams_DefaultModel(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("u")}})
	if params.Model != "llama3" {
		t.Errorf("Model = %q, want llama3", params.Model)
	}
	if params.Temperature != nil {
		t.Error("Temperature should be nil when unset")
	}
}

func TestCapabilities_NoPenalties(t *testing.T) {
	p := &Provider{model: "llama3"}
	caps := p.Capabilities()
	if caps.SupportsPenalties || caps.SupportsResponseFormat {
		t.Errorf("Capabilities = %+v, want none", caps)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewAnthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"NewLlamaCpp", func() (*Provider, error) { return NewLlamaCpp("llama3") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("%s: expected non-nil provider", tt.name)
			}
		})
	}
}
