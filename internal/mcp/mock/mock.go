// Package mock provides an in-memory test double for the [mcp.Session]
// interface.
//
// [Session] records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	s := &mock.Session{}
//	s.ListToolsResult = []mcp.Tool{{Name: "search"}}
//	s.CallToolResults = map[string]*mcp.ToolResult{"search": {Content: "sunny"}}
//
//	// inject s into the system under test …
//
//	if got := s.CallCount("CallTool"); got != 1 {
//	    t.Errorf("expected 1 CallTool call, got %d", got)
//	}
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/MrWong99/mcpchat/internal/mcp"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Session is a configurable test double for [mcp.Session].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil / zero values.
type Session struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// Name is returned by [Session.ServerName].
	Name string

	// ──── ListTools ────────────────────────────────────────────────────────

	// ListToolsResult is returned by [Session.ListTools].
	ListToolsResult []mcp.Tool

	// ListToolsErr is returned by [Session.ListTools] when non-nil.
	ListToolsErr error

	// ──── CallTool ─────────────────────────────────────────────────────────

	// CallToolResults maps tool names to the result returned by
	// [Session.CallTool]. Names not present yield CallToolResult.
	CallToolResults map[string]*mcp.ToolResult

	// CallToolResult is the fallback result of [Session.CallTool]. When nil,
	// a zero-value *ToolResult is returned.
	CallToolResult *mcp.ToolResult

	// CallToolErrs maps tool names to a transport error returned by
	// [Session.CallTool].
	CallToolErrs map[string]error

	// CallToolErr is returned by [Session.CallTool] for every tool when non-nil.
	CallToolErr error

	// ──── Err / Close ──────────────────────────────────────────────────────

	// SessionErr is returned by [Session.Err]. Err calls are not recorded,
	// matching a real session where Err never reaches the server.
	SessionErr error

	// CloseErr is returned by [Session.Close] when non-nil.
	CloseErr error

	// StatsResult is returned by [Session.Stats].
	StatsResult []mcp.ToolStats
}

// Calls returns a copy of all recorded method invocations.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (s *Session) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ToolCalls returns the names of every tool passed to CallTool, in order.
func (s *Session) ToolCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, c := range s.calls {
		if c.Method == "CallTool" {
			names = append(names, c.Args[0].(string))
		}
	}
	return names
}

// Reset clears all recorded calls without altering response configuration.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// ServerName implements [mcp.Session].
func (s *Session) ServerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Name
}

// ListTools implements [mcp.Session].
func (s *Session) ListTools(_ context.Context) ([]mcp.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "ListTools"})
	if s.ListToolsErr != nil {
		return nil, s.ListToolsErr
	}
	out := make([]mcp.Tool, len(s.ListToolsResult))
	copy(out, s.ListToolsResult)
	return out, nil
}

// CallTool implements [mcp.Session]. The recorded args are a shallow copy.
func (s *Session) CallTool(_ context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "CallTool", Args: []any{name, maps.Clone(args)}})

	if s.CallToolErr != nil {
		return nil, s.CallToolErr
	}
	if err := s.CallToolErrs[name]; err != nil {
		return nil, err
	}
	res := s.CallToolResults[name]
	if res == nil {
		res = s.CallToolResult
	}
	if res == nil {
		return &mcp.ToolResult{}, nil
	}
	// Return a copy so the caller cannot mutate the configured result.
	cp := *res
	return &cp, nil
}

// Err implements [mcp.Session].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionErr
}

// Stats implements [mcp.Session].
func (s *Session) Stats() []mcp.ToolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mcp.ToolStats(nil), s.StatsResult...)
}

// Close implements [mcp.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Close"})
	return s.CloseErr
}

// Ensure Session satisfies the interface at compile time.
var _ mcp.Session = (*Session)(nil)
