package tools

import "errors"

var (
	// ErrConnection is returned by [Discover] when the tool provider cannot
	// be reached or advertises an unusable catalogue. It is fatal to session
	// startup.
	ErrConnection = errors.New("tool provider connection failed")

	// ErrUnknownTool is reported when the model names a tool that is not in
	// the session's snapshot. No provider round-trip happens.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMalformedArguments is reported when a tool request's argument
	// payload is not a JSON object.
	ErrMalformedArguments = errors.New("malformed tool arguments")
)

// ToolError is a failure reported by the tool itself: the provider answered,
// but flagged its result as an error.
type ToolError struct {
	// Tool is the name of the failing tool.
	Tool string

	// Message is the tool's error output.
	Message string
}

// Error implements error.
func (e *ToolError) Error() string {
	if e.Message == "" {
		return "tool " + e.Tool + " reported an error"
	}
	return e.Message
}
