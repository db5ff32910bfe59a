package core

import "time"

// Role identifies who authored a message.
type Role string

const (
	// RoleUser is a caller-authored message.
	RoleUser Role = "user"
	// RoleAssistant is a model-authored message.
	RoleAssistant Role = "assistant"
	// RoleToolResult carries a tool's output back to the model.
	RoleToolResult Role = "toolResult"
)

// Message is one entry of conversation history. Messages are immutable once
// appended; the closed set is UserMessage, AssistantMessage and
// ToolResultMessage.
type Message interface {
	Role() Role
	isMessage()
}

// UserMessage is plain caller input.
type UserMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role implements Message.
func (UserMessage) Role() Role { return RoleUser }
func (UserMessage) isMessage() {}

// NewUserMessage creates a user message stamped with the current UTC time.
func NewUserMessage(text string) UserMessage {
	return UserMessage{Content: text, Timestamp: time.Now().UTC()}
}

// AssistantMessage is one finished model turn: an optional text block
// followed by tool-call blocks in the order the calls finished.
type AssistantMessage struct {
	Content      []Block    `json:"content"`
	StopReason   StopReason `json:"stop_reason"`
	Usage        *Usage     `json:"usage,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Role implements Message.
func (AssistantMessage) Role() Role { return RoleAssistant }
func (AssistantMessage) isMessage() {}

// Text returns the concatenated text blocks of the message.
func (m AssistantMessage) Text() string { return JoinText(m.Content) }

// ToolCalls returns the tool calls of the message preserving their order.
func (m AssistantMessage) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if tc, ok := b.(ToolCallBlock); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

// ToolResultMessage carries a tool's output, or its failure, keyed by the
// originating call id.
type ToolResultMessage struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Content    []Block        `json:"content"`
	Details    map[string]any `json:"details,omitempty"`
	IsError    bool           `json:"is_error"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Role implements Message.
func (ToolResultMessage) Role() Role { return RoleToolResult }
func (ToolResultMessage) isMessage() {}

// Text returns the concatenated text blocks of the result.
func (m ToolResultMessage) Text() string { return JoinText(m.Content) }

// NewToolErrorResult builds an error-flagged tool result carrying message.
func NewToolErrorResult(call ToolCall, message string) ToolResultMessage {
	return ToolResultMessage{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    []Block{TextBlock{Text: message}},
		IsError:    true,
		Timestamp:  time.Now().UTC(),
	}
}
