// Package mcphost provides a concrete implementation of the [mcp.Session]
// interface.
//
// It connects to a single MCP server via stdio, streamable-HTTP or SSE
// transports using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk), flattens tool results into display
// text, and keeps per-tool latency statistics in rolling windows.
//
// Typical usage:
//
//	h, err := mcphost.Connect(ctx, mcp.ServerConfig{
//	    Name:      "weather",
//	    Transport: mcp.TransportStdio,
//	    Command:   "python weather_server.py",
//	})
//	if err != nil { ... }
//	defer h.Close()
//
//	tools, err := h.ListTools(ctx)
//	result, err := h.CallTool(ctx, "get_forecast", map[string]any{"city": "Berlin"})
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mcpchat/internal/mcp"
)

// defaultWindowSize is the default capacity of each tool's rolling window.
const defaultWindowSize = 100

// clientName and clientVersion identify this client in the MCP handshake.
const (
	clientName    = "mcpchat"
	clientVersion = "1.0.0"
)

// Host is a concrete implementation of [mcp.Session].
//
// The zero value is NOT usable; create instances with [Connect] or
// [ConnectTransport].
type Host struct {
	name    string
	session *mcpsdk.ClientSession

	mu    sync.Mutex
	stats map[string]*rollingWindow // key: tool name

	closeOnce sync.Once
	closeErr  error

	// state is nil while the session is usable. Guarded by mu.
	state error
}

// Compile-time check: Host must implement mcp.Session.
var _ mcp.Session = (*Host)(nil)

// Connect opens a session to the MCP server described by cfg.
//
// For [mcp.TransportStdio]: cfg.Command is split on whitespace into
// executable + args and cfg.Env is appended to the inherited environment.
// The subprocess is bound to ctx, so ctx should live as long as the session.
//
// For [mcp.TransportStreamableHTTP] and [mcp.TransportSSE]: cfg.URL is the
// endpoint address and cfg.Token, if set, is sent as a bearer token.
func Connect(ctx context.Context, cfg mcp.ServerConfig) (*Host, error) {
	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return ConnectTransport(ctx, cfg.Name, transport)
}

// ConnectTransport opens a session over an already-built SDK transport. It is
// the seam used by tests to connect through in-memory transports.
func ConnectTransport(ctx context.Context, name string, transport mcpsdk.Transport) (*Host, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp host: connect to server %q: %w", name, err)
	}
	h := &Host{
		name:    name,
		session: session,
		stats:   make(map[string]*rollingWindow),
	}
	go h.watch()
	return h, nil
}

// watch records the end of the connection, whoever ended it.
func (h *Host) watch() {
	err := h.session.Wait()
	if err != nil {
		h.markDown(fmt.Errorf("%w: connection to server %q ended: %w", mcp.ErrSessionClosed, h.name, err))
		return
	}
	h.markDown(fmt.Errorf("%w: connection to server %q ended", mcp.ErrSessionClosed, h.name))
}

// markDown stores the first reason the session became unusable.
func (h *Host) markDown(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == nil {
		h.state = err
	}
}

// buildTransport creates the SDK transport for cfg.
func buildTransport(ctx context.Context, cfg mcp.ServerConfig) (mcpsdk.Transport, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return nil, fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("mcp host: stdio server %q requires a non-empty command", cfg.Name)
		}
		// #nosec G204 -- the command comes from the operator's config file.
		cmd := exec.CommandContext(ctx, executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			keys := make([]string, 0, len(cfg.Env))
			for k := range cfg.Env {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp host: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient(cfg.Token)}, nil

	default: // mcp.TransportSSE
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp host: sse server %q requires a non-empty url", cfg.Name)
		}
		return &mcpsdk.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient(cfg.Token)}, nil
	}
}

// httpClient returns nil (SDK default) when token is empty, and otherwise a
// client that authenticates every request.
func httpClient(token string) *http.Client {
	if token == "" {
		return nil
	}
	return &http.Client{Transport: &bearerTransport{token: token, base: http.DefaultTransport}}
}

// bearerTransport injects an Authorization header into each request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

// ServerName implements [mcp.Session].
func (h *Host) ServerName() string { return h.name }

// ListTools implements [mcp.Session]. Tools are returned in server order,
// following pagination cursors until the listing is exhausted.
func (h *Host) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	for tool, err := range h.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp host: list tools for server %q: %w", h.name, err)
		}
		tools = append(tools, mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return tools, nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// CallTool implements [mcp.Session]. Exactly one tools/call request is sent.
func (h *Host) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	callResult, err := h.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	durationMs := time.Since(start).Milliseconds()

	h.record(name, durationMs, err != nil || (callResult != nil && callResult.IsError))

	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q failed: %w", name, err)
	}

	return &mcp.ToolResult{
		Content:    flattenContent(callResult),
		IsError:    callResult.IsError,
		DurationMs: durationMs,
	}, nil
}

// record stores one measurement in the tool's rolling window.
func (h *Host) record(name string, durationMs int64, isError bool) {
	h.mu.Lock()
	w, ok := h.stats[name]
	if !ok {
		w = newRollingWindow(defaultWindowSize)
		h.stats[name] = w
	}
	h.mu.Unlock()

	w.Record(durationMs, isError)
}

// Stats implements [mcp.Session].
func (h *Host) Stats() []mcp.ToolStats {
	h.mu.Lock()
	names := make([]string, 0, len(h.stats))
	windows := make(map[string]*rollingWindow, len(h.stats))
	for name, w := range h.stats {
		names = append(names, name)
		windows[name] = w
	}
	h.mu.Unlock()

	slices.Sort(names)
	out := make([]mcp.ToolStats, 0, len(names))
	for _, name := range names {
		w := windows[name]
		out = append(out, mcp.ToolStats{
			Name:      name,
			P50Ms:     w.P50(),
			P99Ms:     w.P99(),
			CallCount: w.Count(),
			ErrorRate: w.ErrorRate(),
		})
	}
	return out
}

// Err implements [mcp.Session]. It only reads local state.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Close implements [mcp.Session].
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.markDown(fmt.Errorf("%w: server %q", mcp.ErrSessionClosed, h.name))
		if err := h.session.Close(); err != nil {
			h.closeErr = fmt.Errorf("mcp host: close server %q: %w", h.name, err)
		}
	})
	return h.closeErr
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
