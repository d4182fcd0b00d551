// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// CompletionRequests and to feed a scripted sequence of responses without a
// live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{
//	        {ToolCalls: []llm.ToolCall{{ID: "t1", Name: "search", Arguments: `{"q":"x"}`}}},
//	        {Content: "done"},
//	    },
//	}
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/mcpchat/pkg/provider/llm"
	"github.com/MrWong99/mcpchat/pkg/types"
)

// ErrScriptExhausted is returned by Complete when every scripted response has
// been consumed and no fallback is configured.
var ErrScriptExhausted = errors.New("mock llm: no scripted response left")

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete. Messages and Tools are
	// deep-copied at call time so later mutation by the caller is visible as
	// a difference.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is consumed in order, one per Complete call.
	Responses []*llm.CompletionResponse

	// Errs, when non-nil at index i, makes the i-th Complete call fail with
	// that error instead of consuming a response.
	Errs []error

	// CompleteResponse is returned once Responses is exhausted. When nil,
	// exhaustion yields ErrScriptExhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by every Complete call.
	CompleteErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: cloneRequest(req)})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if idx < len(p.Errs) && p.Errs[idx] != nil {
		return nil, p.Errs[idx]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.next < len(p.Responses) {
		resp := p.Responses[p.next]
		p.next++
		return resp, nil
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return nil, ErrScriptExhausted
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

func cloneRequest(req llm.CompletionRequest) llm.CompletionRequest {
	out := req
	out.Messages = make([]types.Message, len(req.Messages))
	for i, m := range req.Messages {
		m.ToolCalls = append([]types.ToolCall(nil), m.ToolCalls...)
		out.Messages[i] = m
	}
	out.Tools = append([]types.ToolDefinition(nil), req.Tools...)
	return out
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
