package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/agentwire/core"
)

// Partial is one wire fragment of a tool call addressed by its stream-local
// index. Any field may be empty.
type Partial struct {
	ID        string
	Name      string
	Arguments string
}

// fragment accumulates the pieces of one in-flight tool call.
type fragment struct {
	id   string
	name string
	args strings.Builder
}

// Assembler turns index-addressed tool-call fragments into toolcall_start,
// toolcall_delta and toolcall_end events. One Assembler serves exactly one
// connector call and is not safe for concurrent use.
type Assembler struct {
	frags map[int]*fragment
	order []int
	newID func(index int) string
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		frags: map[int]*fragment{},
		newID: fallbackID,
	}
}

// fallbackID derives an id from the call position for providers that omit one.
func fallbackID(index int) string {
	return fmt.Sprintf("call_%d_%s", index, uuid.NewString()[:8])
}

// Observe records a fragment for index. The first observation of an index
// emits toolcall_start; every non-empty argument fragment emits a
// toolcall_delta. The first non-empty id and name win.
func (a *Assembler) Observe(index int, p Partial) []core.Event {
	var events []core.Event

	f, ok := a.frags[index]
	if !ok {
		f = &fragment{}
		a.frags[index] = f
		a.order = append(a.order, index)
		events = append(events, core.NewToolCallStartEvent(index))
	}

	if f.id == "" && p.ID != "" {
		f.id = p.ID
	}
	if f.name == "" && p.Name != "" {
		f.name = p.Name
	}
	if p.Arguments != "" {
		f.args.WriteString(p.Arguments)
		events = append(events, core.NewToolCallDeltaEvent(index, p.Arguments))
	}

	return events
}

// Finalize parses the accumulated arguments of index and returns the
// toolcall_end event. The fragment is discarded either way. An empty buffer
// parses as an empty object; anything else that is not a JSON object yields an
// error wrapping core.ErrMalformedToolArguments.
func (a *Assembler) Finalize(index int) (core.Event, error) {
	f, ok := a.frags[index]
	if !ok {
		return core.Event{}, &core.ProtocolError{
			Event:  core.EventToolCallEnd,
			Index:  index,
			Reason: "finalize without open tool call",
		}
	}
	a.remove(index)

	args, err := parseArguments(f.args.String())
	if err != nil {
		return core.Event{}, fmt.Errorf("%w: tool %q (index %d): %v", core.ErrMalformedToolArguments, f.name, index, err)
	}

	id := f.id
	if id == "" {
		id = a.newID(index)
	}

	return core.NewToolCallEndEvent(index, core.ToolCall{ID: id, Name: f.name, Arguments: args}), nil
}

// FinalizeAll closes every open call in the order the calls were opened. It
// stops at the first malformed call and returns the events produced so far
// together with the error.
func (a *Assembler) FinalizeAll() ([]core.Event, error) {
	pending := append([]int(nil), a.order...)
	events := make([]core.Event, 0, len(pending))
	for _, idx := range pending {
		ev, err := a.Finalize(idx)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// IsOpen reports whether index has an open fragment.
func (a *Assembler) IsOpen(index int) bool {
	_, ok := a.frags[index]
	return ok
}

// Open returns the number of open fragments.
func (a *Assembler) Open() int { return len(a.frags) }

func (a *Assembler) remove(index int) {
	delete(a.frags, index)
	for i, idx := range a.order {
		if idx == index {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		return nil, fmt.Errorf("arguments are not a JSON object")
	}
	return args, nil
}
