package llm

import "github.com/MrWong99/mcpchat/pkg/types"

// Message is an alias for [types.Message] so callers of this package do not
// need a second import for the conversation shape.
type Message = types.Message

// ToolCall is an alias for [types.ToolCall].
type ToolCall = types.ToolCall

// ToolDefinition is an alias for [types.ToolDefinition].
type ToolDefinition = types.ToolDefinition

// ModelCapabilities is an alias for [types.ModelCapabilities].
type ModelCapabilities = types.ModelCapabilities

// Finish reasons reported in [CompletionResponse.FinishReason]. Providers pass
// through whatever their backend returns; these are the values the
// orchestrator inspects.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)
