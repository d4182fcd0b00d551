package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mcpchat/internal/config"
	"github.com/MrWong99/mcpchat/internal/mcp"
	"github.com/MrWong99/mcpchat/pkg/provider/llm"
	llmmock "github.com/MrWong99/mcpchat/pkg/provider/llm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: "127.0.0.1:9090"
  log_level: debug

providers:
  llm:
    name: openai
    api_key: sk-test
    base_url: https://api.deepseek.com
    model: deepseek-chat
    max_tokens: 1024
    options:
      organization: org-123
      timeout: 90s
      temperature: 0.2
      system_prompt: Answer briefly.

mcp:
  server:
    name: weather
    transport: stdio
    command: python weather_server.py --verbose
    env:
      WEATHER_API_KEY: abc

chat:
  max_rounds: 8
  render_markdown: true
  markdown_style: dark
  wrap_width: 80
  quit_word: exit
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

// ── Loading ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != "127.0.0.1:9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}

	llmCfg := cfg.Providers.LLM
	if llmCfg.Name != "openai" || llmCfg.Model != "deepseek-chat" || llmCfg.BaseURL != "https://api.deepseek.com" {
		t.Errorf("llm: got %+v", llmCfg)
	}
	if llmCfg.MaxTokens != 1024 {
		t.Errorf("max_tokens: got %d, want 1024", llmCfg.MaxTokens)
	}

	srv := cfg.MCP.Server
	if srv.Transport != mcp.TransportStdio {
		t.Errorf("transport: got %q", srv.Transport)
	}
	if srv.Env["WEATHER_API_KEY"] != "abc" {
		t.Errorf("env: got %v", srv.Env)
	}

	if got := cfg.Chat.Rounds(); got != 8 {
		t.Errorf("max_rounds: got %d, want 8", got)
	}
	if !cfg.Chat.RenderMarkdown || cfg.Chat.MarkdownStyle != "dark" || cfg.Chat.WrapWidth != 80 {
		t.Errorf("chat: got %+v", cfg.Chat)
	}
	if cfg.Chat.QuitWord != "exit" {
		t.Errorf("quit_word: got %q", cfg.Chat.QuitWord)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg := mustLoad(t, `
mcp:
  server:
    command: ./server
`)

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default: got %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLM.Name != config.DefaultLLMProvider {
		t.Errorf("llm name default: got %q", cfg.Providers.LLM.Name)
	}
	if cfg.Providers.LLM.Model != config.DefaultModel {
		t.Errorf("model default: got %q", cfg.Providers.LLM.Model)
	}
	if cfg.Providers.LLM.MaxTokens != 2024 {
		t.Errorf("max_tokens default: got %d, want 2024", cfg.Providers.LLM.MaxTokens)
	}
	if cfg.MCP.Server.Name != config.DefaultMCPName {
		t.Errorf("mcp name default: got %q", cfg.MCP.Server.Name)
	}
	if cfg.MCP.Server.Transport != mcp.TransportStdio {
		t.Errorf("transport should be inferred as stdio, got %q", cfg.MCP.Server.Transport)
	}
	if cfg.Chat.Rounds() != config.DefaultMaxRounds {
		t.Errorf("max_rounds default: got %d", cfg.Chat.Rounds())
	}
	if cfg.Chat.QuitWord != "quit" {
		t.Errorf("quit_word default: got %q", cfg.Chat.QuitWord)
	}
}

func TestLoadFromReader_InferHTTPTransport(t *testing.T) {
	cfg := mustLoad(t, `
mcp:
  server:
    url: https://tools.example.com/mcp
`)
	if cfg.MCP.Server.Transport != mcp.TransportStreamableHTTP {
		t.Errorf("transport should be inferred as streamable-http, got %q", cfg.MCP.Server.Transport)
	}
}

func TestLoadFromReader_ZeroRoundsDisablesCap(t *testing.T) {
	cfg := mustLoad(t, `
mcp:
  server:
    command: ./server
chat:
  max_rounds: 0
`)
	if got := cfg.Chat.Rounds(); got != 0 {
		t.Errorf("explicit max_rounds 0 must be kept, got %d", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`
mcp:
  server:
    command: ./server
    commnad: typo
`))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Options ──────────────────────────────────────────────────────────────────

func TestProviderEntry_LLMOptions(t *testing.T) {
	cfg := mustLoad(t, sampleYAML)

	opts, err := cfg.Providers.LLM.LLMOptions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Organization != "org-123" {
		t.Errorf("organization: got %q", opts.Organization)
	}
	if opts.Timeout != 90*time.Second {
		t.Errorf("timeout: got %v", opts.Timeout)
	}
	if opts.Temperature != 0.2 {
		t.Errorf("temperature: got %v", opts.Temperature)
	}
	if opts.SystemPrompt != "Answer briefly." {
		t.Errorf("system_prompt: got %q", opts.SystemPrompt)
	}
}

func TestProviderEntry_LLMOptions_Empty(t *testing.T) {
	opts, err := config.ProviderEntry{}.LLMOptions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts != (config.LLMOptions{}) {
		t.Errorf("expected zero options, got %+v", opts)
	}
}

func TestProviderEntry_LLMOptions_WeakTypes(t *testing.T) {
	entry := config.ProviderEntry{Options: map[string]any{"temperature": "0.7", "timeout": "2m"}}
	opts, err := entry.LLMOptions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Temperature != 0.7 || opts.Timeout != 2*time.Minute {
		t.Errorf("got %+v", opts)
	}
}

func TestProviderEntry_LLMOptions_UnknownKey(t *testing.T) {
	entry := config.ProviderEntry{Options: map[string]any{"temprature": 0.3}}
	if _, err := entry.LLMOptions(); err == nil {
		t.Fatal("expected error for unknown option key, got nil")
	}
}

// ── MCP ──────────────────────────────────────────────────────────────────────

func TestMCPServerConfig_HostConfig(t *testing.T) {
	srv := config.MCPServerConfig{
		Name:      "tools",
		Transport: mcp.TransportSSE,
		URL:       "https://tools.example.com/sse",
		Auth:      &config.MCPAuthConfig{Token: "t0k"},
	}
	hc := srv.HostConfig()
	if hc.Name != "tools" || hc.Transport != mcp.TransportSSE || hc.URL != srv.URL {
		t.Errorf("got %+v", hc)
	}
	if hc.Token != "t0k" {
		t.Errorf("token: got %q", hc.Token)
	}

	if got := (config.MCPServerConfig{Command: "x"}).HostConfig().Token; got != "" {
		t.Errorf("expected no token without auth block, got %q", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error for unknown LLM provider")
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	reg := config.NewRegistry()
	stub := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "pong"}}
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return stub, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "pong" {
		t.Errorf("provider not the registered one: %v %v", resp, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestRegistry_LLMNames(t *testing.T) {
	reg := config.NewRegistry()
	for _, n := range []string{"openai", "anthropic", "ollama"} {
		reg.RegisterLLM(n, func(config.ProviderEntry) (llm.Provider, error) { return nil, nil })
	}
	got := strings.Join(reg.LLMNames(), ",")
	if got != "anthropic,ollama,openai" {
		t.Errorf("got %q", got)
	}
}
