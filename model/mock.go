package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/stream"
)

// MockTurn scripts one connector call.
type MockTurn struct {
	// Text is streamed in single-word chunks.
	Text string
	// ToolCalls are streamed with arguments fragmented into ChunkSize pieces.
	ToolCalls []core.ToolCall
	// StopReason for done; tool calls force tool-use.
	StopReason core.StopReason
	Usage      *core.Usage
	// Err ends the turn with an error event after any text.
	Err error
	// Events, when set, are replayed verbatim after start.
	Events []core.Event
}

// MockOptions configure a MockConnector.
type MockOptions struct {
	ID       string
	Provider string
	// ChunkSize is the tool-argument fragment length.
	ChunkSize int
}

// MockConnector is a deterministic in‑memory Connector useful for tests & examples.
// Scripted turns are consumed in order; once exhausted it replies
// "Mock response to: <last user text>".
type MockConnector struct {
	opts MockOptions

	mu       sync.Mutex
	turns    []MockTurn
	requests []Context
}

// NewMockConnector constructs a MockConnector.
func NewMockConnector(optFns ...func(o *MockOptions)) *MockConnector {
	opts := MockOptions{ID: "mock", Provider: "mock", ChunkSize: 10}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 10
	}
	return &MockConnector{opts: opts}
}

// AddTurn appends scripted turns.
func (m *MockConnector) AddTurn(turns ...MockTurn) *MockConnector {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	return m
}

// Requests returns the contexts received so far.
func (m *MockConnector) Requests() []Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Context(nil), m.requests...)
}

// Info implements Connector.
func (m *MockConnector) Info() Info {
	return Info{ID: m.opts.ID, Label: "Mock", Provider: m.opts.Provider, API: "mock"}
}

// Models implements Connector.
func (m *MockConnector) Models() []Descriptor {
	return []Descriptor{{ID: "mock-1", Name: "Mock 1", Provider: m.opts.Provider, API: "mock", ContextWindow: 8192, MaxTokens: 1024}}
}

// Stream implements Connector.
func (m *MockConnector) Stream(ctx context.Context, _ Descriptor, c Context, _ StreamOptions) *stream.Stream {
	m.mu.Lock()
	m.requests = append(m.requests, copyContext(c))
	var turn MockTurn
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	} else {
		turn = MockTurn{Text: fmt.Sprintf("Mock response to: %s", lastUserText(c.Messages))}
	}
	m.mu.Unlock()

	if turn.Events != nil {
		batches := make([][]core.Event, len(turn.Events))
		for i, ev := range turn.Events {
			batches[i] = []core.Event{ev}
		}
		return stream.New(ctx, &mockSource{batches: batches})
	}
	return stream.New(ctx, &mockSource{batches: m.script(turn)})
}

// script renders a turn into per-chunk event batches via the Normalizer.
func (m *MockConnector) script(turn MockTurn) [][]core.Event {
	n := stream.NewNormalizer()
	var batches [][]core.Event

	for _, word := range splitWords(turn.Text) {
		batches = append(batches, n.Text(word))
	}
	if turn.Err != nil {
		return append(batches, append(n.EndText(), n.Fail(turn.Err)...))
	}

	for i, call := range turn.ToolCalls {
		raw, err := json.Marshal(call.Arguments)
		if err != nil {
			return append(batches, n.Fail(fmt.Errorf("mock: encode arguments: %w", err)))
		}
		args := string(raw)
		batches = append(batches, n.ToolCall(i, stream.Partial{ID: call.ID, Name: call.Name}))
		for len(args) > 0 {
			k := min(m.opts.ChunkSize, len(args))
			batches = append(batches, n.ToolCall(i, stream.Partial{Arguments: args[:k]}))
			args = args[k:]
		}
		batches = append(batches, n.EndToolCall(i))
	}

	reason := turn.StopReason
	if reason == "" {
		reason = core.StopReasonStop
	}
	return append(batches, n.Done(reason, turn.Usage))
}

type mockSource struct {
	batches [][]core.Event
}

func (s *mockSource) Next(context.Context) ([]core.Event, error) {
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func (s *mockSource) Close() error { return nil }

// splitWords splits text into word chunks, keeping separators attached to
// the following word so the chunks concatenate back to text.
func splitWords(text string) []string {
	var out []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' && text[i-1] != ' ' {
			out = append(out, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func lastUserText(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if um, ok := msgs[i].(core.UserMessage); ok {
			return um.Content
		}
	}
	return ""
}

func copyContext(c Context) Context {
	c.Messages = append([]core.Message(nil), c.Messages...)
	c.Tools = append(c.Tools[:0:0], c.Tools...)
	return c
}
