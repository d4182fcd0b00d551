// Package config provides the configuration schema, loader, and provider
// registry for mcpchat.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/MrWong99/mcpchat/internal/mcp"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultLLMProvider = "openai"
	DefaultModel       = "deepseek-chat"
	DefaultMaxTokens   = 2024
	DefaultMaxRounds   = 20
	DefaultQuitWord    = "quit"
	DefaultWrapWidth   = 100
	DefaultMCPName     = "mcp"
	DefaultLogLevel    = LogInfo
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for mcpchat.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	MCP       MCPConfig       `yaml:"mcp"`
	Chat      ChatConfig      `yaml:"chat"`
}

// ServerConfig holds logging and diagnostics settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the diagnostics HTTP server
	// (e.g., "127.0.0.1:9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the language model backend.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the configuration block of a model provider. The Name
// field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Any
	// OpenAI-compatible server works with the "openai" provider.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "deepseek-chat").
	Model string `yaml:"model"`

	// MaxTokens caps completion tokens per model call. Zero uses the
	// provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Options holds provider-specific values decoded by [ProviderEntry.LLMOptions].
	Options map[string]any `yaml:"options"`
}

// LLMOptions are the recognised keys of [ProviderEntry.Options].
type LLMOptions struct {
	// Organization is the OpenAI organization header.
	Organization string `mapstructure:"organization"`

	// Timeout bounds a single HTTP request to the model API ("90s", "2m").
	Timeout time.Duration `mapstructure:"timeout"`

	// Temperature is the sampling temperature. Zero keeps the provider default.
	Temperature float64 `mapstructure:"temperature"`

	// SystemPrompt is sent ahead of every conversation.
	SystemPrompt string `mapstructure:"system_prompt"`
}

// LLMOptions decodes Options. Unknown keys are an error so typos surface at
// startup.
func (e ProviderEntry) LLMOptions() (LLMOptions, error) {
	var out LLMOptions
	if len(e.Options) == 0 {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(e.Options); err != nil {
		return out, fmt.Errorf("decode options: %w", err)
	}
	return out, nil
}

// MCPConfig holds the tool server the session connects to.
type MCPConfig struct {
	Server MCPServerConfig `yaml:"server"`
}

// MCPServerConfig describes how to connect to the MCP tool server.
type MCPServerConfig struct {
	// Name identifies the server in logs.
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism. When empty it is
	// inferred: stdio if Command is set, streamable-http if URL is set.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio".
	Command string `yaml:"command"`

	// URL is the MCP endpoint used by the HTTP transports.
	URL string `yaml:"url"`

	// Auth configures authentication for HTTP transports. Ignored for stdio
	// (use Env for credential injection instead).
	Auth *MCPAuthConfig `yaml:"auth"`

	// Env holds additional environment variables for the stdio subprocess.
	Env map[string]string `yaml:"env"`
}

// MCPAuthConfig configures authentication for HTTP-based MCP servers.
type MCPAuthConfig struct {
	// Token is a static Bearer token sent in the Authorization header of
	// every request.
	Token string `yaml:"token"`
}

// HostConfig converts the server block into an [mcp.ServerConfig].
func (s MCPServerConfig) HostConfig() mcp.ServerConfig {
	hc := mcp.ServerConfig{
		Name:      s.Name,
		Transport: s.Transport,
		Command:   s.Command,
		URL:       s.URL,
		Env:       s.Env,
	}
	if s.Auth != nil {
		hc.Token = s.Auth.Token
	}
	return hc
}

// ChatConfig controls the interactive session.
type ChatConfig struct {
	// MaxRounds caps model calls per query. Nil means [DefaultMaxRounds];
	// zero disables the cap.
	MaxRounds *int `yaml:"max_rounds"`

	// RenderMarkdown renders answers as terminal markdown.
	RenderMarkdown bool `yaml:"render_markdown"`

	// MarkdownStyle is a glamour style name. Empty detects it from the terminal.
	MarkdownStyle string `yaml:"markdown_style"`

	// WrapWidth is the markdown word-wrap column.
	WrapWidth int `yaml:"wrap_width"`

	// QuitWord ends the session when typed as a query.
	QuitWord string `yaml:"quit_word"`
}

// Rounds returns the effective round cap.
func (c ChatConfig) Rounds() int {
	if c.MaxRounds == nil {
		return DefaultMaxRounds
	}
	return *c.MaxRounds
}

// ApplyDefaults fills unset fields with their defaults. It is called by
// [LoadFromReader] before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}

	llm := &cfg.Providers.LLM
	if llm.Name == "" {
		llm.Name = DefaultLLMProvider
	}
	if llm.Model == "" && llm.Name == DefaultLLMProvider {
		llm.Model = DefaultModel
	}
	if llm.MaxTokens == 0 {
		llm.MaxTokens = DefaultMaxTokens
	}

	srv := &cfg.MCP.Server
	if srv.Name == "" {
		srv.Name = DefaultMCPName
	}
	if srv.Transport == "" {
		switch {
		case srv.Command != "":
			srv.Transport = mcp.TransportStdio
		case srv.URL != "":
			srv.Transport = mcp.TransportStreamableHTTP
		}
	}

	if cfg.Chat.QuitWord == "" {
		cfg.Chat.QuitWord = DefaultQuitWord
	}
	if cfg.Chat.WrapWidth == 0 {
		cfg.Chat.WrapWidth = DefaultWrapWidth
	}
}
