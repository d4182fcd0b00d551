package conversation

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mcpchat/pkg/types"
)

func TestNew(t *testing.T) {
	s := New("what is the weather?")

	require.Equal(t, 1, s.Len())
	assert.Equal(t, UserTurn{Text: "what is the weather?"}, s.Last())
	assert.True(t, s.Ready())
	assert.Empty(t, s.Pending())
}

func TestAppendAssistant_PendingRequests(t *testing.T) {
	s := New("q")
	require.NoError(t, s.AppendAssistant(AssistantTurn{ToolRequests: []ToolRequest{
		{ID: "a", Name: "search", Arguments: `{}`},
		{ID: "b", Name: "fetch", Arguments: `{}`},
	}}))

	assert.False(t, s.Ready())
	assert.Equal(t, []string{"a", "b"}, pendingIDs(s))

	err := s.AppendAssistant(AssistantTurn{Text: "too early"})
	assert.ErrorIs(t, err, ErrPendingResults)
	assert.Equal(t, 2, s.Len(), "rejected turn must not be appended")

	_, err = s.Messages()
	assert.ErrorIs(t, err, ErrPendingResults)
}

func TestAppendToolResult_Order(t *testing.T) {
	s := New("q")
	require.NoError(t, s.AppendAssistant(AssistantTurn{ToolRequests: []ToolRequest{
		{ID: "a", Name: "search"},
		{ID: "b", Name: "fetch"},
	}}))

	err := s.AppendToolResult(ToolResultTurn{RequestID: "b", Content: "x"})
	assert.ErrorIs(t, err, ErrUnexpectedResult)

	require.NoError(t, s.AppendToolResult(ToolResultTurn{RequestID: "a", Content: "x"}))
	require.NoError(t, s.AppendToolResult(ToolResultTurn{RequestID: "b", Content: "y", IsError: true}))
	assert.True(t, s.Ready())

	err = s.AppendToolResult(ToolResultTurn{RequestID: "c"})
	assert.ErrorIs(t, err, ErrUnexpectedResult)
	assert.Equal(t, 4, s.Len())
}

func TestAppendAssistant_CopiesRequests(t *testing.T) {
	reqs := []ToolRequest{{ID: "a", Name: "search", Arguments: `{"q":1}`}}
	s := New("q")
	require.NoError(t, s.AppendAssistant(AssistantTurn{ToolRequests: reqs}))

	reqs[0].Name = "mutated"

	at, ok := s.Turns()[1].(AssistantTurn)
	require.True(t, ok)
	assert.Equal(t, "search", at.ToolRequests[0].Name)
	assert.Equal(t, "search", s.Pending()[0].Name)
}

func TestTurns_ReturnsCopy(t *testing.T) {
	s := New("q")
	turns := s.Turns()
	turns[0] = UserTurn{Text: "changed"}
	assert.Equal(t, UserTurn{Text: "q"}, s.Last())
}

func TestMessages(t *testing.T) {
	s := New("weather in Paris?")
	require.NoError(t, s.AppendAssistant(AssistantFromCalls("Let me check.", []types.ToolCall{
		{ID: "call_1", Name: "search", Arguments: `{"q": "Paris weather"}`},
	})))
	require.NoError(t, s.AppendToolResult(ToolResultTurn{RequestID: "call_1", Content: "18C, cloudy"}))
	require.NoError(t, s.AppendAssistant(AssistantTurn{Text: "It is 18C and cloudy."}))

	got, err := s.Messages()
	require.NoError(t, err)

	want := []types.Message{
		{Role: types.RoleUser, Content: "weather in Paris?"},
		{Role: types.RoleAssistant, Content: "Let me check.", ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "search", Arguments: `{"q": "Paris weather"}`},
		}},
		{Role: types.RoleTool, Content: "18C, cloudy", ToolCallID: "call_1"},
		{Role: types.RoleAssistant, Content: "It is 18C and cloudy."},
	}
	assert.Equal(t, want, got)

	again, err := s.Messages()
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 4, s.Len())
}

func TestMessages_ErrorResultIsPlainToolMessage(t *testing.T) {
	s := New("q")
	require.NoError(t, s.AppendAssistant(AssistantTurn{ToolRequests: []ToolRequest{{ID: "x", Name: "nope"}}}))
	require.NoError(t, s.AppendToolResult(ToolResultTurn{RequestID: "x", Content: "Error: unknown tool", IsError: true}))

	msgs, err := s.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, types.Message{Role: types.RoleTool, Content: "Error: unknown tool", ToolCallID: "x"}, msgs[2])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "user", KindUser.String())
	assert.Equal(t, "assistant", KindAssistant.String())
	assert.Equal(t, "tool_result", KindToolResult.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

// TestMessages_ResultsFollowRequests checks that for any batch of tool
// requests, the rendered messages place exactly one tool message per request
// directly after the assistant message, in request order.
func TestMessages_ResultsFollowRequests(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("tool messages follow their assistant turn in order", prop.ForAll(
		func(names []string) bool {
			calls := make([]types.ToolCall, len(names))
			for i, n := range names {
				calls[i] = types.ToolCall{ID: fmt.Sprintf("call_%d", i), Name: n, Arguments: "{}"}
			}

			s := New("q")
			if err := s.AppendAssistant(AssistantFromCalls("", calls)); err != nil {
				return false
			}
			for _, c := range calls {
				if err := s.AppendToolResult(ToolResultTurn{RequestID: c.ID, Content: c.Name}); err != nil {
					return false
				}
			}

			msgs, err := s.Messages()
			if err != nil || len(msgs) != 2+len(calls) {
				return false
			}
			if len(msgs[1].ToolCalls) != len(calls) {
				return false
			}
			for i, c := range calls {
				m := msgs[2+i]
				if m.Role != types.RoleTool || m.ToolCallID != c.ID || m.Content != c.Name {
					return false
				}
				if msgs[1].ToolCalls[i] != c {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func pendingIDs(s *State) []string {
	var ids []string
	for _, r := range s.Pending() {
		ids = append(ids, r.ID)
	}
	return ids
}
