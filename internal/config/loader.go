package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mcpchat/internal/mcp"
)

// ValidLLMProviders lists the built-in model provider names. [Validate]
// warns about names outside this list.
var ValidLLMProviders = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// envRef matches ${VAR} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${VAR} in raw with the value of the environment
// variable VAR. Unset variables expand to the empty string and are logged.
// A bare $ is left alone.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := string(envRef.FindSubmatch(m)[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("config references an unset environment variable", "var", name)
		}
		return []byte(v)
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// LLM
	llm := cfg.Providers.LLM
	if llm.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	} else if !slices.Contains(ValidLLMProviders, llm.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"kind", "llm",
			"name", llm.Name,
			"known", ValidLLMProviders,
		)
	}
	if llm.Model == "" && llm.Name != "" {
		errs = append(errs, fmt.Errorf("providers.llm.model is required for provider %q", llm.Name))
	}
	if llm.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("providers.llm.max_tokens %d must not be negative", llm.MaxTokens))
	}
	if opts, err := llm.LLMOptions(); err != nil {
		errs = append(errs, fmt.Errorf("providers.llm.options: %w", err))
	} else {
		if opts.Temperature < 0 || opts.Temperature > 2 {
			errs = append(errs, fmt.Errorf("providers.llm.options.temperature %.2f is out of range [0, 2]", opts.Temperature))
		}
		if opts.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers.llm.options.timeout %s must not be negative", opts.Timeout))
		}
	}
	if llm.APIKey == "" && llm.Name != "ollama" && llm.Name != "llamacpp" && llm.Name != "llamafile" {
		slog.Warn("providers.llm.api_key is empty; the provider may reject requests", "name", llm.Name)
	}

	// MCP server
	srv := cfg.MCP.Server
	switch {
	case srv.Transport == "":
		errs = append(errs, errors.New("mcp.server: either command (stdio) or url (streamable-http, sse) is required"))
	case !srv.Transport.IsValid():
		errs = append(errs, fmt.Errorf("mcp.server.transport %q is invalid; valid values: stdio, streamable-http, sse", srv.Transport))
	case srv.Transport == mcp.TransportStdio && srv.Command == "":
		errs = append(errs, errors.New("mcp.server.command is required when transport is stdio"))
	case srv.Transport.IsHTTP() && srv.URL == "":
		errs = append(errs, fmt.Errorf("mcp.server.url is required when transport is %s", srv.Transport))
	}
	if srv.Transport == mcp.TransportStdio && srv.Auth != nil && srv.Auth.Token != "" {
		slog.Warn("mcp.server.auth is ignored for stdio transport; pass credentials through env instead")
	}
	if srv.Transport.IsHTTP() && len(srv.Env) > 0 {
		slog.Warn("mcp.server.env is ignored for HTTP transports")
	}

	// Chat
	if n := cfg.Chat.MaxRounds; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("chat.max_rounds %d must not be negative; use 0 to disable the cap", *n))
	}
	if cfg.Chat.WrapWidth < 0 {
		errs = append(errs, fmt.Errorf("chat.wrap_width %d must not be negative", cfg.Chat.WrapWidth))
	}

	return errors.Join(errs...)
}
