package stream

import (
	"strings"

	"github.com/hupe1980/agentwire/core"
)

// Validator checks an event sequence against the canonical stream invariants
// one event at a time. Feed it every event in order; the first violation is
// returned as a *core.ProtocolError and the validator stays failed.
type Validator struct {
	started    bool
	terminated bool
	open       map[int]bool
	text       strings.Builder
	toolEnds   int
	err        error
}

// NewValidator creates a validator for one connector call.
func NewValidator() *Validator {
	return &Validator{open: map[int]bool{}}
}

// Check validates ev against the events seen so far.
func (v *Validator) Check(ev core.Event) error {
	if v.err != nil {
		return v.err
	}
	v.err = v.check(ev)
	return v.err
}

func (v *Validator) check(ev core.Event) error {
	if v.terminated {
		return violation(ev, "event after terminal event")
	}
	if !v.started {
		if ev.Type != core.EventStart {
			return violation(ev, "first event must be start")
		}
		v.started = true
		return nil
	}

	switch ev.Type {
	case core.EventStart:
		return violation(ev, "duplicate start")
	case core.EventTextDelta:
		v.text.WriteString(ev.Delta)
	case core.EventTextEnd:
		if ev.Content != v.text.String() {
			return violation(ev, "text_end content differs from accumulated deltas")
		}
		v.text.Reset()
	case core.EventToolCallStart:
		if v.open[ev.Index] {
			return violation(ev, "tool call already open")
		}
		v.open[ev.Index] = true
	case core.EventToolCallDelta:
		if !v.open[ev.Index] {
			return violation(ev, "delta without open tool call")
		}
	case core.EventToolCallEnd:
		if !v.open[ev.Index] {
			return violation(ev, "end without open tool call")
		}
		if ev.ToolCall == nil || ev.ToolCall.Arguments == nil {
			return violation(ev, "end without parsed arguments")
		}
		delete(v.open, ev.Index)
		v.toolEnds++
	case core.EventDone:
		v.terminated = true
		if ev.StopReason == "" {
			return violation(ev, "empty stop reason")
		}
		if len(v.open) > 0 {
			return violation(ev, "done with unfinished tool calls")
		}
		if v.toolEnds > 0 && ev.StopReason != core.StopReasonToolUse {
			return violation(ev, "tool calls finished but stop reason is "+string(ev.StopReason))
		}
	case core.EventError:
		v.terminated = true
	default:
		return violation(ev, "unknown event type")
	}
	return nil
}

// Terminated reports whether a terminal event has been seen.
func (v *Validator) Terminated() bool { return v.terminated }

// Validate checks a complete sequence, including that it is terminated.
func Validate(events []core.Event) error {
	v := NewValidator()
	for _, ev := range events {
		if err := v.Check(ev); err != nil {
			return err
		}
	}
	if !v.terminated {
		return &core.ProtocolError{Reason: "missing terminal event"}
	}
	return nil
}

func violation(ev core.Event, reason string) error {
	return &core.ProtocolError{Event: ev.Type, Index: ev.Index, Reason: reason}
}
