package conversation

import (
	"fmt"

	"github.com/MrWong99/mcpchat/pkg/types"
)

// Messages renders the state as the model's message list. It fails with
// [ErrPendingResults] while tool requests are unanswered, because the model
// API rejects an assistant tool call without its result.
//
// The rendering is pure: calling it twice yields equal slices and the state
// is not modified.
func (s *State) Messages() ([]types.Message, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("%w: %d unanswered", ErrPendingResults, len(s.pending))
	}

	msgs := make([]types.Message, 0, len(s.turns))
	for _, turn := range s.turns {
		switch t := turn.(type) {
		case UserTurn:
			msgs = append(msgs, types.Message{Role: types.RoleUser, Content: t.Text})

		case AssistantTurn:
			m := types.Message{Role: types.RoleAssistant, Content: t.Text}
			for _, r := range t.ToolRequests {
				m.ToolCalls = append(m.ToolCalls, types.ToolCall{
					ID:        r.ID,
					Name:      r.Name,
					Arguments: r.Arguments,
				})
			}
			msgs = append(msgs, m)

		case ToolResultTurn:
			msgs = append(msgs, types.Message{
				Role:       types.RoleTool,
				Content:    t.Content,
				ToolCallID: t.RequestID,
			})
		}
	}
	return msgs, nil
}

// AssistantFromCalls builds an assistant turn from a model response.
func AssistantFromCalls(text string, calls []types.ToolCall) AssistantTurn {
	t := AssistantTurn{Text: text}
	for _, c := range calls {
		t.ToolRequests = append(t.ToolRequests, ToolRequest{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: c.Arguments,
		})
	}
	return t
}
