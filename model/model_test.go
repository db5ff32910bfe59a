package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	first := NewMockConnector(func(o *MockOptions) { o.ID = "a"; o.Provider = "p" })
	second := NewMockConnector(func(o *MockOptions) { o.ID = "b"; o.Provider = "p" })
	r.Register(first)
	r.Register(second)

	c, ok := r.ByProvider("p")
	require.True(t, ok)
	assert.Same(t, first, c, "first match wins")

	replacement := NewMockConnector(func(o *MockOptions) { o.ID = "a"; o.Provider = "q" })
	r.Register(replacement)
	got, _ := r.Get("a")
	assert.Same(t, replacement, got)
	assert.Len(t, r.All(), 2)

	c, ok = r.ByProvider("p")
	require.True(t, ok)
	assert.Same(t, second, c)

	_, ok = r.ByProvider("missing")
	assert.False(t, ok)
}

func TestRegistry_FindModel(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMockConnector())

	_, d, ok := r.FindModel("mock", "mock-1")
	require.True(t, ok)
	assert.Equal(t, 1024, d.MaxTokens)

	_, d, ok = r.FindModel("mock", "custom")
	require.True(t, ok)
	assert.Equal(t, "custom", d.ID)
	assert.Equal(t, "mock", d.Provider)

	_, _, ok = r.FindModel("nope", "x")
	assert.False(t, ok)
}

func TestStreamOptions_MaxTokensFor(t *testing.T) {
	assert.Equal(t, 5, StreamOptions{MaxTokens: 5}.MaxTokensFor(Descriptor{MaxTokens: 9}, 1))
	assert.Equal(t, 9, StreamOptions{}.MaxTokensFor(Descriptor{MaxTokens: 9}, 1))
	assert.Equal(t, 1, StreamOptions{}.MaxTokensFor(Descriptor{}, 1))
}

func collect(t *testing.T, s *stream.Stream) []core.Event {
	t.Helper()
	events := stream.Collect(s)
	require.NoError(t, s.Err())
	require.NoError(t, stream.Validate(events))
	return events
}

func TestMockConnector_TextInWords(t *testing.T) {
	m := NewMockConnector().AddTurn(MockTurn{Text: "hello world"})
	events := collect(t, m.Stream(context.Background(), Descriptor{}, Context{}, StreamOptions{}))

	var deltas []string
	for _, ev := range events {
		if ev.Type == core.EventTextDelta {
			deltas = append(deltas, ev.Delta)
		}
	}
	assert.Equal(t, []string{"hello", " world"}, deltas)
	assert.Equal(t, "hello world", events[len(events)-2].Content)
	assert.Equal(t, core.StopReasonStop, events[len(events)-1].StopReason)
}

func TestMockConnector_ToolCallFragments(t *testing.T) {
	args := map[string]any{"message": "ping", "nested": map[string]any{"n": 1.5, "list": []any{"a", true}}}
	m := NewMockConnector().AddTurn(MockTurn{ToolCalls: []core.ToolCall{{ID: "c1", Name: "echo", Arguments: args}}})
	events := collect(t, m.Stream(context.Background(), Descriptor{}, Context{}, StreamOptions{}))

	var end *core.ToolCall
	for _, ev := range events {
		if ev.Type == core.EventToolCallDelta {
			assert.LessOrEqual(t, len(ev.Delta), 10)
		}
		if ev.Type == core.EventToolCallEnd {
			end = ev.ToolCall
		}
	}
	require.NotNil(t, end)
	assert.Equal(t, "c1", end.ID)
	assert.Equal(t, args, end.Arguments)
	assert.Equal(t, core.StopReasonToolUse, events[len(events)-1].StopReason)
}

func TestMockConnector_DefaultReplyAndRequests(t *testing.T) {
	m := NewMockConnector()
	c := Context{Messages: []core.Message{core.NewUserMessage("hi")}}
	events := collect(t, m.Stream(context.Background(), Descriptor{}, c, StreamOptions{}))

	assert.Equal(t, "Mock response to: hi", events[len(events)-2].Content)
	require.Len(t, m.Requests(), 1)
	assert.Len(t, m.Requests()[0].Messages, 1)
}

func TestMockConnector_Error(t *testing.T) {
	m := NewMockConnector().AddTurn(MockTurn{Text: "partial", Err: errors.New("overloaded")})
	events := collect(t, m.Stream(context.Background(), Descriptor{}, Context{}, StreamOptions{}))

	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, "overloaded", last.ErrorMessage())
}

func TestMockConnector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMockConnector().AddTurn(MockTurn{Text: "one two three"})
	s := m.Stream(ctx, Descriptor{}, Context{}, StreamOptions{})

	require.True(t, s.Next())
	require.True(t, s.Next())
	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}
