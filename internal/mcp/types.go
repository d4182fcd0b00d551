package mcp

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"

	// TransportSSE communicates via the legacy HTTP+SSE protocol.
	TransportSSE Transport = "sse"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP, TransportSSE:
		return true
	}
	return false
}

// IsHTTP reports whether t connects over HTTP.
func (t Transport) IsHTTP() bool {
	return t == TransportStreamableHTTP || t == TransportSSE
}

// Tool is a tool as advertised by an MCP server.
type Tool struct {
	// Name is the tool's unique identifier on its server.
	Name string

	// Description is the human-readable purpose of the tool. May be empty.
	Description string

	// InputSchema is the JSON Schema object describing the tool's arguments.
	// Never nil; a server that omits the schema yields {"type":"object"}.
	InputSchema map[string]any
}

// ToolStats captures the measured runtime performance of a single MCP tool
// over the host's rolling window.
type ToolStats struct {
	// Name is the tool's unique identifier.
	Name string

	// P50Ms is the observed median execution latency in milliseconds.
	P50Ms int64

	// P99Ms is the observed 99th-percentile execution latency in milliseconds.
	P99Ms int64

	// CallCount is the total number of times this tool has been invoked.
	CallCount int

	// ErrorRate is the fraction of windowed calls that failed (0.0–1.0).
	ErrorRate float64
}
