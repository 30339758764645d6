package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty default model returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty defaultModel")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported backend returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that the OpenAI backend constructs with a key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.defaultModel != "gpt-4o-mini" {
		t.Errorf("defaultModel = %q, want %q", p.defaultModel, "gpt-4o-mini")
	}
}

// TestNew_CaseInsensitiveBackendName checks provider name matching ignores case.
func TestNew_CaseInsensitiveBackendName(t *testing.T) {
	p, err := New("OpenAI", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestConvenienceConstructors checks all convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o-mini", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewAnthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
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

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{defaultModel: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are terse.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Hi"},
		},
	})

	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != "You are terse." {
		t.Errorf("system content = %q", params.Messages[0].ContentString())
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("second role = %q, want user", params.Messages[1].Role)
	}
}

func TestBuildParams_DefaultModelFallback(t *testing.T) {
	p := &Provider{defaultModel: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
	})
	if params.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want the default", params.Model)
	}

	params = p.buildParams(llm.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
	})
	if params.Model != "gpt-4o" {
		t.Errorf("Model = %q, want the per-request override", params.Model)
	}
}

func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{defaultModel: "gpt-4o-mini"}

	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
	})
	if params.Temperature != nil {
		t.Errorf("Temperature = %v for zero request, want nil", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("MaxTokens = %v for zero request, want nil", *params.MaxTokens)
	}

	params = p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v, want 256", params.MaxTokens)
	}
}
