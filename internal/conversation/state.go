package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrPendingResults is returned when an assistant turn is appended, or
	// the state is rendered for the model, while tool requests of the
	// previous assistant turn are still unanswered.
	ErrPendingResults = errors.New("conversation: tool results pending")

	// ErrUnexpectedResult is returned when a tool result does not answer the
	// next pending request.
	ErrUnexpectedResult = errors.New("conversation: unexpected tool result")
)

// State is the append-only conversation of one query. It is owned by a single
// loop invocation and is not safe for concurrent use.
type State struct {
	turns []Turn

	// pending holds the requests of the last assistant turn that still lack
	// a result, in request order.
	pending []ToolRequest
}

// New returns a state seeded with the user's query.
func New(query string) *State {
	return &State{turns: []Turn{UserTurn{Text: query}}}
}

// Len returns the number of turns.
func (s *State) Len() int { return len(s.turns) }

// Turns returns a copy of the turn sequence.
func (s *State) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Last returns the most recent turn.
func (s *State) Last() Turn { return s.turns[len(s.turns)-1] }

// Pending returns the tool requests still awaiting a result, in order.
func (s *State) Pending() []ToolRequest {
	out := make([]ToolRequest, len(s.pending))
	copy(out, s.pending)
	return out
}

// Ready reports whether every tool request has been answered, which is the
// precondition for the next model call.
func (s *State) Ready() bool { return len(s.pending) == 0 }

// AppendAssistant appends a model response. Its tool requests become pending.
func (s *State) AppendAssistant(t AssistantTurn) error {
	if !s.Ready() {
		return fmt.Errorf("%w: %d unanswered", ErrPendingResults, len(s.pending))
	}
	t.ToolRequests = append([]ToolRequest(nil), t.ToolRequests...)
	s.turns = append(s.turns, t)
	s.pending = append(s.pending[:0], t.ToolRequests...)
	return nil
}

// AppendToolResult appends the result for the next pending request. Results
// must arrive in request order.
func (s *State) AppendToolResult(t ToolResultTurn) error {
	if len(s.pending) == 0 {
		return fmt.Errorf("%w: no request pending for id %q", ErrUnexpectedResult, t.RequestID)
	}
	if want := s.pending[0].ID; t.RequestID != want {
		return fmt.Errorf("%w: got id %q, want %q", ErrUnexpectedResult, t.RequestID, want)
	}
	s.turns = append(s.turns, t)
	s.pending = s.pending[1:]
	return nil
}
