// Package mcptest runs in-process MCP servers for tests.
//
// A server built with [NewServer] is connected to a real [mcphost.Host]
// through the SDK's in-memory transports, so tests exercise the full
// client/server protocol without spawning a subprocess.
//
//	srv := mcptest.NewServer()
//	mcptest.AddTextTool(srv, "echo", "Echo input", nil, func(args map[string]any) (string, error) {
//	    return fmt.Sprint(args["text"]), nil
//	})
//	host := mcptest.Connect(t, srv)
package mcptest

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mcpchat/internal/mcp/mcphost"
)

// NewServer returns an empty MCP server.
func NewServer() *mcpsdk.Server {
	return mcpsdk.NewServer(&mcpsdk.Implementation{Name: "mcptest", Version: "test"}, nil)
}

// TextHandler computes a tool's text output. A non-nil error is reported to
// the client as a tool-level error result (IsError=true), not as a protocol
// failure.
type TextHandler func(args map[string]any) (string, error)

// AddTextTool registers a tool whose result is a single text block. props is
// the JSON Schema "properties" object; nil means no parameters.
func AddTextTool(server *mcpsdk.Server, name, description string, props map[string]any, fn TextHandler) *atomic.Int32 {
	if props == nil {
		props = map[string]any{}
	}
	var calls atomic.Int32
	server.AddTool(&mcpsdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: map[string]any{"type": "object", "properties": props},
	}, func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		calls.Add(1)
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
		}
		out, err := fn(args)
		if err != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	})
	return &calls
}

// Connect starts server on an in-memory transport and returns a connected
// host named "mcptest". Both ends are closed when the test finishes.
func Connect(t testing.TB, server *mcpsdk.Server) *mcphost.Host {
	t.Helper()
	host, _ := ConnectPair(t, server)
	return host
}

// ConnectPair is like [Connect] but also returns the server side of the
// connection, so tests can end it from the server.
func ConnectPair(t testing.TB, server *mcpsdk.Server) (*mcphost.Host, *mcpsdk.ServerSession) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("mcptest: server connect: %v", err)
	}

	host, err := mcphost.ConnectTransport(ctx, "mcptest", clientTransport)
	if err != nil {
		_ = serverSession.Close()
		cancel()
		t.Fatalf("mcptest: client connect: %v", err)
	}

	t.Cleanup(func() {
		_ = host.Close()
		_ = serverSession.Close()
		cancel()
	})
	return host, serverSession
}
