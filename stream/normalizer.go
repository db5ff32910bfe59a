package stream

import (
	"strings"

	"github.com/hupe1980/agentwire/core"
)

// Normalizer is the per-call turn builder shared by connector sources. It
// feeds tool-call fragments through an Assembler, tracks the open text block
// and guarantees that text_end precedes tool calls and the terminal event, and
// that done carries the tool-use classification when a call finished.
type Normalizer struct {
	asm       *Assembler
	text      strings.Builder
	textOpen  bool
	toolEnded bool
	finished  bool
}

// NewNormalizer creates a Normalizer for one connector call.
func NewNormalizer() *Normalizer {
	return &Normalizer{asm: NewAssembler()}
}

// Text emits a text_delta for a non-empty fragment.
func (n *Normalizer) Text(delta string) []core.Event {
	if delta == "" || n.finished {
		return nil
	}
	n.textOpen = true
	n.text.WriteString(delta)
	return []core.Event{core.NewTextDeltaEvent(delta)}
}

// EndText closes the open text block, if any.
func (n *Normalizer) EndText() []core.Event {
	if !n.textOpen {
		return nil
	}
	content := n.text.String()
	n.text.Reset()
	n.textOpen = false
	return []core.Event{core.NewTextEndEvent(content)}
}

// ToolCall observes a tool-call fragment at index, closing any open text block
// before the call opens.
func (n *Normalizer) ToolCall(index int, p Partial) []core.Event {
	if n.finished {
		return nil
	}
	var events []core.Event
	if !n.asm.IsOpen(index) {
		events = append(events, n.EndText()...)
	}
	return append(events, n.asm.Observe(index, p)...)
}

// EndToolCall finalizes the call at index. A malformed call yields a terminal
// error event and finishes the turn.
func (n *Normalizer) EndToolCall(index int) []core.Event {
	if n.finished || !n.asm.IsOpen(index) {
		return nil
	}
	ev, err := n.asm.Finalize(index)
	if err != nil {
		return n.Fail(err)
	}
	n.toolEnded = true
	return []core.Event{ev}
}

// Done closes open text, finalizes every still-open call and emits done. The
// reason is forced to tool-use when any call finished in this turn.
func (n *Normalizer) Done(reason core.StopReason, usage *core.Usage) []core.Event {
	if n.finished {
		return nil
	}
	events := n.EndText()

	ends, err := n.asm.FinalizeAll()
	events = append(events, ends...)
	if len(ends) > 0 {
		n.toolEnded = true
	}
	if err != nil {
		return append(events, n.Fail(err)...)
	}

	if n.toolEnded {
		reason = core.StopReasonToolUse
	}
	n.finished = true
	return append(events, core.NewDoneEvent(reason, usage))
}

// Fail emits the terminal error event.
func (n *Normalizer) Fail(err error) []core.Event {
	if n.finished {
		return nil
	}
	n.finished = true
	return []core.Event{core.NewErrorEvent(err)}
}

// Finished reports whether a terminal event has been produced.
func (n *Normalizer) Finished() bool { return n.finished }
