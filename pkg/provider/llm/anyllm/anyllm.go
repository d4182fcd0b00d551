// Package anyllm adapts github.com/mozilla-ai/any-llm-go backends to
// [llm.Provider]. Only the non-streaming completion call is used: the tool
// loop needs the whole assistant message, tool calls included, before it can
// act.
//
//	p, err := anyllm.New("deepseek", "deepseek-chat", anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/mcpchat/pkg/provider/llm"
	"github.com/MrWong99/mcpchat/pkg/types"
)

// backend describes one any-llm-go provider package.
type backend struct {
	open func(...anyllmlib.Option) (anyllmlib.Provider, error)
	// local backends run on the user's machine and take no API key.
	local bool
}

var backends = map[string]backend{
	"openai":    {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) }},
	"anthropic": {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) }},
	"gemini":    {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) }},
	"deepseek":  {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) }},
	"mistral":   {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) }},
	"groq":      {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) }},
	"ollama":    {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) }, local: true},
	"llamacpp":  {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) }, local: true},
	"llamafile": {open: func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) }, local: true},
}

// Backends returns the provider names accepted by [New], sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Local reports whether the named backend is a local server that is
// addressed by base URL and takes no API key.
func Local(name string) bool {
	return backends[strings.ToLower(name)].local
}

// Provider implements [llm.Provider] on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Provider for model on the backend named providerName, one of
// [Backends]. Without an API key option the backend reads its usual
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	b, ok := backends[strings.ToLower(providerName)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s",
			providerName, strings.Join(Backends(), ", "))
	}
	impl, err := b.open(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: impl, model: model}, nil
}

// Complete sends one non-streaming completion and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.model)
	}

	msg := resp.Choices[0].Message
	out := &llm.CompletionResponse{
		Content:      msg.ContentString(),
		FinishReason: string(resp.Choices[0].FinishReason),
		ToolCalls:    make([]types.ToolCall, 0, len(msg.ToolCalls)),
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	if len(out.ToolCalls) == 0 {
		out.ToolCalls = nil
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

// Capabilities looks the model up in the known families.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams lays the request out for any-llm-go. Zero temperature and
// token cap are left unset so the backend defaults apply.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(req.Messages)+1),
		Tools:    toolParams(req.Tools),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m))
	}
	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params
}

func toolParams(defs []types.ToolDefinition) []anyllmlib.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]anyllmlib.Tool, len(defs))
	for i, td := range defs {
		out[i] = anyllmlib.Tool{
			Type:     "function",
			Function: anyllmlib.Function{Name: td.Name, Description: td.Description, Parameters: td.Parameters},
		}
	}
	return out
}

// convertMessage maps one conversation message, tool calls included.
func convertMessage(m types.Message) anyllmlib.Message {
	msg := anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: anyllmlib.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	return msg
}

// family holds the limits of every model whose name starts with prefix.
// The first matching entry wins, so narrower prefixes come first.
type family struct {
	prefix string
	caps   types.ModelCapabilities
}

var families = []family{
	{"gpt-4o", types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"o1-mini", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
	{"deepseek-reasoner", types.ModelCapabilities{ContextWindow: 64_000, MaxOutputTokens: 8_192}},
	{"deepseek", types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 64_000, MaxOutputTokens: 8_192}},
	{"claude", types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 200_000, MaxOutputTokens: 8_192}},
	{"gemini", types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"mistral", types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 32_768, MaxOutputTokens: 4_096}},
	{"llama", types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 32_768, MaxOutputTokens: 4_096}},
}

// unknownFamily is assumed for models missing from families.
var unknownFamily = types.ModelCapabilities{SupportsToolCalling: true, ContextWindow: 128_000, MaxOutputTokens: 4_096}

func modelCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range families {
		if strings.HasPrefix(lower, f.prefix) {
			return f.caps
		}
	}
	return unknownFamily
}
