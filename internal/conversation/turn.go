// Package conversation holds the per-query conversation state of the tool
// loop.
//
// A [State] is an append-only sequence of [Turn] values. It starts with one
// [UserTurn] and grows by one [AssistantTurn] per model call, followed by one
// [ToolResultTurn] per tool request that turn carried. The state enforces that
// pairing: results must arrive in request order, and no new assistant turn may
// be appended while requests are still unanswered.
package conversation

// Kind identifies the variant of a [Turn].
type Kind int

const (
	KindUser Kind = iota
	KindAssistant
	KindToolResult
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAssistant:
		return "assistant"
	case KindToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Turn is one entry of the conversation. The concrete type is one of
// [UserTurn], [AssistantTurn] or [ToolResultTurn].
type Turn interface {
	Kind() Kind
	isTurn()
}

// ToolRequest is a model's request to invoke a tool.
type ToolRequest struct {
	// ID is the model-assigned identifier, echoed back in the matching
	// [ToolResultTurn].
	ID string

	// Name is the requested tool.
	Name string

	// Arguments is the raw JSON argument string exactly as the model sent
	// it, so the assistant turn can be replayed verbatim.
	Arguments string
}

// UserTurn is the human's query.
type UserTurn struct {
	Text string
}

// AssistantTurn is one model response: optional text plus zero or more tool
// requests in the order the model issued them.
type AssistantTurn struct {
	Text         string
	ToolRequests []ToolRequest
}

// HasRequests reports whether the turn asks for tool invocations.
func (t AssistantTurn) HasRequests() bool { return len(t.ToolRequests) > 0 }

// ToolResultTurn carries the outcome of one tool request back to the model.
type ToolResultTurn struct {
	// RequestID matches [ToolRequest.ID].
	RequestID string

	// Content is the tool output, or the serialized error when IsError is set.
	Content string

	// IsError marks a failed invocation.
	IsError bool
}

func (UserTurn) Kind() Kind       { return KindUser }
func (AssistantTurn) Kind() Kind  { return KindAssistant }
func (ToolResultTurn) Kind() Kind { return KindToolResult }

func (UserTurn) isTurn()       {}
func (AssistantTurn) isTurn()  {}
func (ToolResultTurn) isTurn() {}
