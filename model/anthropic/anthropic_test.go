package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct{ name, data string }

func sse(events ...sseEvent) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", e.name, e.data)
	}
	return b.String()
}

const messageStart = `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-0","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`

func newServer(t *testing.T, status int, body string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			*seen = string(raw)
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, mc model.Context) []core.Event {
	t.Helper()
	c := NewConnector(func(o *Options) {
		o.BaseURL = srv.URL
		o.APIKey = "test"
		o.MaxRetries = 0
	})
	s := c.Stream(context.Background(), model.Descriptor{ID: "claude-sonnet-4-0"}, mc, model.StreamOptions{})
	events := stream.Collect(s)
	require.NoError(t, s.Err())
	require.NoError(t, stream.Validate(events))
	return events
}

func TestStream_TextThenTool(t *testing.T) {
	body := sse(
		sseEvent{"message_start", messageStart},
		sseEvent{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		sseEvent{"ping", `{"type":"ping"}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"check."}}`},
		sseEvent{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		sseEvent{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"echo","input":{}}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":""}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"message\": \"pi"}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"ng\"}"}}`},
		sseEvent{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		sseEvent{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":20}}`},
		sseEvent{"message_stop", `{"type":"message_stop"}`},
	)
	var req string
	srv := newServer(t, http.StatusOK, body, &req)

	events := run(t, srv, model.Context{SystemPrompt: "sys", Messages: []core.Message{core.NewUserMessage("hi")}})

	types := make([]core.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []core.EventType{
		core.EventStart, core.EventTextDelta, core.EventTextDelta, core.EventTextEnd,
		core.EventToolCallStart, core.EventToolCallDelta, core.EventToolCallDelta,
		core.EventToolCallEnd, core.EventDone,
	}, types)

	assert.Equal(t, "Let me check.", events[3].Content)
	assert.Equal(t, "toolu_1", events[7].ToolCall.ID)
	assert.Equal(t, map[string]any{"message": "ping"}, events[7].ToolCall.Arguments)

	done := events[8]
	assert.Equal(t, core.StopReasonToolUse, done.StopReason)
	assert.Equal(t, 30, done.Usage.TotalTokens)
	assert.Contains(t, req, `"stream":true`)
}

func TestStream_HTTPError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, `{"type":"error","error":{"type":"api_error","message":"Internal server error"}}`, nil)

	events := run(t, srv, model.Context{Messages: []core.Message{core.NewUserMessage("hi")}})

	require.Len(t, events, 2)
	assert.Equal(t, core.EventError, events[1].Type)
	assert.Contains(t, events[1].ErrorMessage(), "Internal server error")
}

func TestStream_TruncatedStream(t *testing.T) {
	body := sse(
		sseEvent{"message_start", messageStart},
		sseEvent{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		sseEvent{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"cut"}}`},
	)
	srv := newServer(t, http.StatusOK, body, nil)

	events := run(t, srv, model.Context{})
	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.ErrorIs(t, last.Err, stream.ErrUnexpectedEnd)
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, core.StopReasonStop, MapStopReason("end_turn"))
	assert.Equal(t, core.StopReasonLength, MapStopReason("max_tokens"))
	assert.Equal(t, core.StopReasonToolUse, MapStopReason("tool_use"))
	assert.Equal(t, core.StopReasonError, MapStopReason("refusal"))
}

func TestConvertMessages_MergesToolResults(t *testing.T) {
	a := core.ToolCall{ID: "t1", Name: "echo", Arguments: map[string]any{"message": "x"}}
	b := core.ToolCall{ID: "t2", Name: "ls"}
	msgs := []core.Message{
		core.NewUserMessage("go"),
		core.AssistantMessage{Content: []core.Block{core.ToolCallBlock{ToolCall: a}, core.ToolCallBlock{ToolCall: b}}},
		core.ToolResultMessage{ToolCallID: "t1", Content: []core.Block{core.TextBlock{Text: "x"}}},
		core.NewToolErrorResult(b, "tool not available: ls"),
		core.NewUserMessage("next"),
	}

	out := ConvertMessages(msgs)
	require.Len(t, out, 4)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	require.Len(t, out[2].Content, 2)
	require.NotNil(t, out[2].Content[1].OfToolResult)
	assert.Equal(t, "t2", out[2].Content[1].OfToolResult.ToolUseID)
	assert.True(t, out[2].Content[1].OfToolResult.IsError.Value)
	assert.Equal(t, "user", string(out[3].Role))
}
