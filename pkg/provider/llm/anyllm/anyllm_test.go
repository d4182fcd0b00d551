package anyllm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mcpchat/pkg/provider/llm"
	"github.com/MrWong99/mcpchat/pkg/types"
)

// ── convertMessage ────────────────────────────────────────────────────────────

// TestConvertMessage_User checks that user-role messages are converted correctly.
func TestConvertMessage_User(t *testing.T) {
	got := convertMessage(types.Message{Role: types.RoleUser, Content: "Hello!"})
	if got.Role != "user" {
		t.Errorf("expected role user, got %q", got.Role)
	}
	if got.ContentString() != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", got.ContentString())
	}
}

// TestConvertMessage_AssistantWithToolCalls checks tool call conversion.
func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	got := convertMessage(types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
		},
	})
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "get_weather" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("unexpected arguments: %q", tc.Function.Arguments)
	}
	if tc.Type != "function" {
		t.Errorf("expected type function, got %q", tc.Type)
	}
}

// TestConvertMessage_Tool checks tool-result message conversion.
func TestConvertMessage_Tool(t *testing.T) {
	got := convertMessage(types.Message{Role: types.RoleTool, Content: "sunny", ToolCallID: "call_1"})
	if got.Role != "tool" {
		t.Errorf("expected role tool, got %q", got.Role)
	}
	if got.ToolCallID != "call_1" {
		t.Errorf("expected ToolCallID call_1, got %q", got.ToolCallID)
	}
	if got.ContentString() != "sunny" {
		t.Errorf("expected content sunny, got %q", got.ContentString())
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams checks system prompt placement, limits, and tool declarations.
func TestBuildParams(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "hi"}},
		MaxTokens:    2024,
		Temperature:  0.2,
		Tools: []types.ToolDefinition{
			{Name: "search", Description: "Search", Parameters: map[string]any{"type": "object"}},
			{Name: "fetch", Parameters: map[string]any{"type": "object"}},
		},
	})

	if params.Model != "deepseek-chat" {
		t.Errorf("Model = %q, want deepseek-chat", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("expected system prompt first, got %+v", params.Messages)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 2024 {
		t.Errorf("MaxTokens = %v, want 2024", params.MaxTokens)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", params.Temperature)
	}
	if len(params.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(params.Tools))
	}
	if params.Tools[0].Function.Name != "search" || params.Tools[1].Function.Name != "fetch" {
		t.Errorf("tool order not preserved: %q, %q", params.Tools[0].Function.Name, params.Tools[1].Function.Name)
	}
}

// TestBuildParams_Defaults checks that zero values leave provider defaults alone.
func TestBuildParams_Defaults(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if params.MaxTokens != nil {
		t.Errorf("expected nil MaxTokens, got %d", *params.MaxTokens)
	}
	if params.Temperature != nil {
		t.Errorf("expected nil Temperature, got %f", *params.Temperature)
	}
	if len(params.Tools) != 0 {
		t.Errorf("expected no tools, got %d", len(params.Tools))
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model       string
		wantContext int
		wantOutput  int
		wantTools   bool
	}{
		{"gpt-4o-mini", 128_000, 16_384, true},
		{"o1-mini", 128_000, 65_536, false},
		{"deepseek-chat", 64_000, 8_192, true},
		{"DeepSeek-Reasoner", 64_000, 8_192, false},
		{"claude-3-5-sonnet-latest", 200_000, 8_192, true},
		{"gemini-2.0-flash", 1_048_576, 8_192, true},
		{"llama3.1", 32_768, 4_096, true},
		{"my-custom-model", 128_000, 4_096, true},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantContext {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantContext)
			}
			if caps.MaxOutputTokens != tt.wantOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantOutput)
			}
			if caps.SupportsToolCalling != tt.wantTools {
				t.Errorf("SupportsToolCalling = %v, want %v", caps.SupportsToolCalling, tt.wantTools)
			}
		})
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_EveryBackend checks that each listed backend can be constructed.
func TestNew_EveryBackend(t *testing.T) {
	for _, name := range Backends() {
		t.Run(name, func(t *testing.T) {
			var opts []anyllmlib.Option
			if !Local(name) {
				opts = append(opts, anyllmlib.WithAPIKey("sk-test"))
			}
			p, err := New(name, "some-model", opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", name, err)
			}
			if p == nil {
				t.Fatal("expected non-nil provider")
			}
		})
	}
}

func TestBackends(t *testing.T) {
	got := Backends()
	if len(got) != 9 || got[0] != "anthropic" || got[len(got)-1] != "openai" {
		t.Errorf("Backends() = %v", got)
	}
	for _, name := range []string{"ollama", "llamacpp", "llamafile", "OLLAMA"} {
		if !Local(name) {
			t.Errorf("Local(%q) = false, want true", name)
		}
	}
	if Local("deepseek") || Local("nope") {
		t.Error("hosted or unknown backend reported as local")
	}
}

// ── Complete ──────────────────────────────────────────────────────────────────

// TestComplete_TextAnswer runs Complete through the openai backend against a
// local fake endpoint.
func TestComplete_TextAnswer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "42"}
			}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`)
	}))
	defer ts.Close()

	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test"), anyllmlib.WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "answer?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "42" {
		t.Errorf("Content = %q, want 42", resp.Content)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.FinishReason != llm.FinishStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, llm.FinishStop)
	}
}
