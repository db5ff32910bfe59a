package core

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType tags a canonical stream event. The set is closed; connectors must
// not invent additional types.
type EventType string

const (
	// EventStart opens every stream. Exactly one per connector call.
	EventStart EventType = "start"
	// EventTextDelta carries an incremental text fragment.
	EventTextDelta EventType = "text_delta"
	// EventTextEnd closes a text block with its full content.
	EventTextEnd EventType = "text_end"
	// EventToolCallStart opens a tool call at a stream-local index.
	EventToolCallStart EventType = "toolcall_start"
	// EventToolCallDelta carries a raw argument fragment for an open tool call.
	EventToolCallDelta EventType = "toolcall_delta"
	// EventToolCallEnd delivers a finished tool call with parsed arguments.
	EventToolCallEnd EventType = "toolcall_end"
	// EventDone terminates a successful stream.
	EventDone EventType = "done"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// StopReason classifies why a model turn ended.
type StopReason string

const (
	// StopReasonStop is a natural end of turn.
	StopReasonStop StopReason = "stop"
	// StopReasonLength means the output token limit was hit.
	StopReasonLength StopReason = "length"
	// StopReasonToolUse means the model is waiting for tool results.
	StopReasonToolUse StopReason = "toolUse"
	// StopReasonError marks a turn that ended in a provider or transport failure.
	StopReasonError StopReason = "error"
	// StopReasonAborted marks a turn stopped by cancellation.
	StopReasonAborted StopReason = "aborted"
)

// Usage captures token accounting reported by a provider, when available.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ToolCall is a finished tool invocation request. Arguments is always the
// parsed object, never raw JSON text.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ArgumentsJSON encodes the arguments for wire formats that expect a JSON
// string. Nil arguments encode as "{}".
func (tc ToolCall) ArgumentsJSON() string {
	if tc.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Event is one element of the canonical stream protocol. Only the fields
// relevant to Type are populated:
//
//	text_delta      Delta
//	text_end        Content
//	toolcall_start  Index
//	toolcall_delta  Index, Delta
//	toolcall_end    Index, ToolCall
//	done            StopReason, Usage (optional)
//	error           Err
type Event struct {
	Type       EventType  `json:"type"`
	Index      int        `json:"index,omitempty"`
	Delta      string     `json:"delta,omitempty"`
	Content    string     `json:"content,omitempty"`
	ToolCall   *ToolCall  `json:"tool_call,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	Err        error      `json:"-"`
}

// NewStartEvent returns the opening event of a stream.
func NewStartEvent() Event { return Event{Type: EventStart} }

// NewTextDeltaEvent returns a text fragment event.
func NewTextDeltaEvent(delta string) Event { return Event{Type: EventTextDelta, Delta: delta} }

// NewTextEndEvent returns the event closing a text block.
func NewTextEndEvent(content string) Event { return Event{Type: EventTextEnd, Content: content} }

// NewToolCallStartEvent opens the tool call streamed at index.
func NewToolCallStartEvent(index int) Event { return Event{Type: EventToolCallStart, Index: index} }

// NewToolCallDeltaEvent carries an argument fragment for the call at index.
func NewToolCallDeltaEvent(index int, delta string) Event {
	return Event{Type: EventToolCallDelta, Index: index, Delta: delta}
}

// NewToolCallEndEvent delivers the finished call streamed at index.
func NewToolCallEndEvent(index int, call ToolCall) Event {
	return Event{Type: EventToolCallEnd, Index: index, ToolCall: &call}
}

// NewDoneEvent terminates a stream successfully. An empty reason defaults to
// StopReasonStop so the classification is never blank.
func NewDoneEvent(reason StopReason, usage *Usage) Event {
	if reason == "" {
		reason = StopReasonStop
	}
	return Event{Type: EventDone, StopReason: reason, Usage: usage}
}

// NewErrorEvent terminates a stream with a failure.
func NewErrorEvent(err error) Event { return Event{Type: EventError, Err: err} }

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool { return e.Type == EventDone || e.Type == EventError }

// ErrorMessage returns the human readable failure text of an error event.
func (e Event) ErrorMessage() string {
	if e.Err == nil {
		if e.Type == EventError {
			return "unknown error"
		}
		return ""
	}
	return e.Err.Error()
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }
