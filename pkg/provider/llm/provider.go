// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, Anthropic,
// DeepSeek, or a local Ollama instance) and exposes a uniform, non-streaming
// completion call with native function calling, so the orchestrator can run
// its tool loop without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. It is sent in full on
	// every round; providers must not mutate it.
	Messages []Message

	// Tools is the set of function/tool definitions offered to the model. The model
	// may choose to call one or more of them in its response.
	Tools []ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the conversation
	// history as a "system"-role message.
	SystemPrompt string
}

// CompletionResponse is the single assistant message returned for a request.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model, in the
	// order the model issued them. The caller is responsible for executing
	// them and appending the results to the conversation.
	ToolCalls []ToolCall

	// FinishReason is the backend's stop reason ("stop", "length",
	// "tool_calls", ...). Empty when the backend does not report one.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails, if the backend returns no
	// choices, or if ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports. The result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
