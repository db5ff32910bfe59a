package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistantMessage_Helpers(t *testing.T) {
	msg := AssistantMessage{
		Content: []Block{
			TextBlock{Text: "let me "},
			TextBlock{Text: "check"},
			ToolCallBlock{ToolCall: ToolCall{ID: "1", Name: "read"}},
			ToolCallBlock{ToolCall: ToolCall{ID: "2", Name: "ls"}},
		},
		StopReason: StopReasonToolUse,
	}

	assert.Equal(t, RoleAssistant, msg.Role())
	assert.Equal(t, "let me check", msg.Text())

	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "read", calls[0].Name)
	assert.Equal(t, "ls", calls[1].Name)
}

func TestMessages_Roles(t *testing.T) {
	u := NewUserMessage("hi")
	assert.Equal(t, RoleUser, u.Role())
	assert.False(t, u.Timestamp.IsZero())

	res := NewToolErrorResult(ToolCall{ID: "c", Name: "missing"}, "tool not available: missing")
	assert.Equal(t, RoleToolResult, res.Role())
	assert.True(t, res.IsError)
	assert.Equal(t, "c", res.ToolCallID)
	assert.Equal(t, "tool not available: missing", res.Text())
}

func TestJoinText_SkipsNonText(t *testing.T) {
	blocks := []Block{TextBlock{Text: "a"}, ImageBlock{Data: "AAAA", MimeType: "image/png"}, TextBlock{Text: "b"}}
	assert.Equal(t, "ab", JoinText(blocks))
}

func TestTurnLimiter(t *testing.T) {
	tl := NewTurnLimiter(2)
	require.NoError(t, tl.Increment())
	require.NoError(t, tl.Increment())
	assert.Equal(t, 0, tl.Remaining())

	err := tl.Increment()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTurnLimit))
	assert.Equal(t, 2, tl.Count(), "rejected increments are not counted")

	unlimited := NewTurnLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
