// Package mcp defines the client side of a Model Context Protocol (MCP)
// connection.
//
// A [Session] is one live connection to one MCP server. It lists the tools the
// server advertises and executes tool calls on behalf of the orchestrator.
//
// Lifecycle:
//
//  1. Open a session with mcphost.Connect using a [ServerConfig].
//  2. Use [Session.ListTools] once to obtain the tool catalogue.
//  3. Use [Session.CallTool] for every tool request the model issues.
//  4. Call [Session.Close] to terminate the server connection.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"
	"errors"
)

// ErrSessionClosed is reported by [Session.Err] once the session has been
// closed or its connection has ended.
var ErrSessionClosed = errors.New("mcp: session closed")

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the human-readable identifier for this server. Used in log
	// messages and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path and optional arguments used when
	// Transport is "stdio".
	// Example: "python server.py"
	// Ignored for HTTP transports.
	Command string

	// URL is the endpoint address used when Transport is "streamable-http"
	// or "sse".
	// Example: "https://tools.example.com/mcp"
	// Ignored for stdio transport.
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is "stdio". The parent environment is inherited.
	// May be nil.
	Env map[string]string

	// Token, when non-empty, is sent as a bearer token on every HTTP request.
	// Ignored for stdio transport.
	Token string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's output flattened into display text, ready for
	// insertion into an LLM context window.
	Content string

	// IsError indicates that the tool returned an application-level error
	// (as opposed to a transport or protocol failure returned via the Go error
	// return value). When IsError is true, Content contains the error message.
	IsError bool

	// DurationMs is the wall-clock time in milliseconds from when the request
	// was dispatched until the full response was received.
	DurationMs int64
}

// Session is a live connection to a single MCP server.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// ServerName returns the configured name of the connected server.
	ServerName() string

	// ListTools returns the server's tools in the order the server lists
	// them. Returns an error if the listing request fails.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool executes the named tool with already-decoded arguments.
	//
	// A non-nil *ToolResult is returned on success even when
	// [ToolResult.IsError] is true (application-level error). A Go error is
	// returned only on transport or protocol failure.
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	// Err reports why the session can no longer be used: it was closed or
	// the connection to the server ended. It returns nil while the session
	// is usable and never sends anything to the server.
	Err() error

	// Stats returns per-tool latency and error statistics for every tool
	// that has been called at least once, sorted by name.
	Stats() []ToolStats

	// Close terminates the server connection and releases associated
	// resources. Close is idempotent.
	Close() error
}
