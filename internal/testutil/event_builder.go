package testutil

import (
	"github.com/hupe1980/agentwire/core"
)

// EventBuilder provides a fluent helper for constructing canonical event
// sequences in tests. Example:
//
//	args := map[string]any{"message": "ping"}
//	evs := NewEventBuilder().Text("hel", "lo").Tool(0, "c1", "echo", args, `{"message":`, `"ping"}`).Done(core.StopReasonToolUse).Build()
//
// Start is omitted unless WithStart is called because streams emit it
// themselves. Chain only the parts you need.
type EventBuilder struct {
	events []core.Event
}

// NewEventBuilder creates an empty builder.
func NewEventBuilder() *EventBuilder { return &EventBuilder{} }

// WithStart prepends a start event (chainable).
func (b *EventBuilder) WithStart() *EventBuilder {
	b.events = append([]core.Event{core.NewStartEvent()}, b.events...)
	return b
}

// Text appends one text_delta per fragment followed by the matching text_end (chainable).
func (b *EventBuilder) Text(fragments ...string) *EventBuilder {
	content := ""
	for _, f := range fragments {
		b.events = append(b.events, core.NewTextDeltaEvent(f))
		content += f
	}
	b.events = append(b.events, core.NewTextEndEvent(content))
	return b
}

// Tool appends a complete tool call at index: start, one delta per fragment
// and end carrying the call with parsed args (chainable).
func (b *EventBuilder) Tool(index int, id, name string, args map[string]any, fragments ...string) *EventBuilder {
	b.events = append(b.events, core.NewToolCallStartEvent(index))
	for _, f := range fragments {
		b.events = append(b.events, core.NewToolCallDeltaEvent(index, f))
	}
	if args == nil {
		args = map[string]any{}
	}
	b.events = append(b.events, core.NewToolCallEndEvent(index, core.ToolCall{ID: id, Name: name, Arguments: args}))
	return b
}

// Raw appends arbitrary events, including ones that break the protocol (chainable).
func (b *EventBuilder) Raw(events ...core.Event) *EventBuilder {
	b.events = append(b.events, events...)
	return b
}

// Done appends the terminal done event (chainable).
func (b *EventBuilder) Done(reason core.StopReason) *EventBuilder {
	b.events = append(b.events, core.NewDoneEvent(reason, nil))
	return b
}

// Error appends the terminal error event (chainable).
func (b *EventBuilder) Error(err error) *EventBuilder {
	b.events = append(b.events, core.NewErrorEvent(err))
	return b
}

// Build returns a copy of the accumulated events.
func (b *EventBuilder) Build() []core.Event {
	return append([]core.Event(nil), b.events...)
}
