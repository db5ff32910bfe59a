package gemini

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type fakeIterator struct {
	responses []*genai.GenerateContentResponse
	err       error
}

func (f *fakeIterator) Next() (*genai.GenerateContentResponse, error) {
	if len(f.responses) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, iterator.Done
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func replay(it *fakeIterator) []core.Event {
	src := &source{
		open: func(context.Context) (responseIterator, io.Closer, error) {
			return it, nil, nil
		},
		norm: stream.NewNormalizer(),
	}
	return stream.Collect(stream.New(context.Background(), src))
}

func chunk(reason genai.FinishReason, parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}, FinishReason: reason}},
	}
}

func TestStream_Text(t *testing.T) {
	resp := chunk(genai.FinishReasonStop, genai.Text(" world"))
	resp.UsageMetadata = &genai.UsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 2, TotalTokenCount: 6}

	events := replay(&fakeIterator{responses: []*genai.GenerateContentResponse{
		chunk(genai.FinishReasonUnspecified, genai.Text("hello")),
		resp,
	}})
	require.NoError(t, stream.Validate(events))

	last := events[len(events)-1]
	assert.Equal(t, core.EventDone, last.Type)
	assert.Equal(t, core.StopReasonStop, last.StopReason)
	assert.Equal(t, &core.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6}, last.Usage)
	assert.Equal(t, "hello world", events[len(events)-2].Content)
}

func TestStream_FunctionCalls(t *testing.T) {
	events := replay(&fakeIterator{responses: []*genai.GenerateContentResponse{
		chunk(genai.FinishReasonStop,
			genai.Text("checking"),
			genai.FunctionCall{Name: "echo", Args: map[string]any{"message": "ping"}},
			genai.FunctionCall{Name: "ls", Args: map[string]any{}},
		),
	}})
	require.NoError(t, stream.Validate(events))

	var calls []core.ToolCall
	for _, ev := range events {
		if ev.Type == core.EventToolCallEnd {
			calls = append(calls, *ev.ToolCall)
		}
	}
	require.Len(t, calls, 2)
	assert.Equal(t, "echo", calls[0].Name)
	assert.Equal(t, map[string]any{"message": "ping"}, calls[0].Arguments)
	assert.Contains(t, calls[0].ID, "call_0_")
	assert.Contains(t, calls[1].ID, "call_1_")
	assert.Equal(t, core.StopReasonToolUse, events[len(events)-1].StopReason)
}

func TestStream_ParameterlessFunctionCall(t *testing.T) {
	events := replay(&fakeIterator{responses: []*genai.GenerateContentResponse{
		chunk(genai.FinishReasonStop, genai.FunctionCall{Name: "ls"}),
	}})
	require.NoError(t, stream.Validate(events))

	var deltas int
	var call *core.ToolCall
	for _, ev := range events {
		switch ev.Type {
		case core.EventToolCallDelta:
			deltas++
		case core.EventToolCallEnd:
			call = ev.ToolCall
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "ls", call.Name)
	assert.Equal(t, map[string]any{}, call.Arguments)
	assert.Zero(t, deltas)

	last := events[len(events)-1]
	assert.Equal(t, core.EventDone, last.Type)
	assert.Equal(t, core.StopReasonToolUse, last.StopReason)
}

func TestStream_Errors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		events := replay(&fakeIterator{err: errors.New("rpc error: code = Unavailable")})
		require.NoError(t, stream.Validate(events))
		last := events[len(events)-1]
		assert.Equal(t, core.EventError, last.Type)
		assert.Contains(t, last.ErrorMessage(), "Unavailable")
	})

	t.Run("open", func(t *testing.T) {
		src := &source{
			open: func(context.Context) (responseIterator, io.Closer, error) {
				return nil, nil, errors.New("bad key")
			},
			norm: stream.NewNormalizer(),
		}
		events := stream.Collect(stream.New(context.Background(), src))
		require.Len(t, events, 2)
		assert.Contains(t, events[1].ErrorMessage(), "bad key")
	})
}

func TestMapFinishReason(t *testing.T) {
	assert.Equal(t, core.StopReasonStop, MapFinishReason(genai.FinishReasonStop))
	assert.Equal(t, core.StopReasonLength, MapFinishReason(genai.FinishReasonMaxTokens))
	assert.Equal(t, core.StopReasonError, MapFinishReason(genai.FinishReasonSafety))
}

func TestConvertTools(t *testing.T) {
	tools := ConvertTools([]tool.Definition{{
		Name:        "read",
		Description: "Read a file",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"path":  map[string]any{"type": "string", "description": "File path"},
				"lines": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				"mode":  map[string]any{"type": "string", "enum": []any{"a", "b"}},
			},
			"required": []any{"path"},
		},
	}})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)

	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "read", decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"path"}, decl.Parameters.Required)
	assert.Equal(t, "File path", decl.Parameters.Properties["path"].Description)
	assert.Equal(t, genai.TypeInteger, decl.Parameters.Properties["lines"].Items.Type)
	assert.Equal(t, []string{"a", "b"}, decl.Parameters.Properties["mode"].Enum)
}

func TestConvertMessages(t *testing.T) {
	call := core.ToolCall{ID: "c1", Name: "read", Arguments: map[string]any{"path": "a.png"}}
	history, last, err := ConvertMessages([]core.Message{
		core.NewUserMessage("show me"),
		core.AssistantMessage{Content: []core.Block{core.TextBlock{Text: "sure"}, core.ToolCallBlock{ToolCall: call}}},
		core.ToolResultMessage{ToolCallID: "c1", ToolName: "read", Content: []core.Block{core.ImageBlock{Data: "AAE=", MimeType: "image/png"}}},
		core.NewToolErrorResult(core.ToolCall{ID: "c2", Name: "ls"}, "denied"),
	})
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.FunctionCall{Name: "read", Args: map[string]any{"path": "a.png"}}, history[1].Parts[1])

	require.Len(t, last, 3)
	assert.Equal(t, genai.FunctionResponse{Name: "read", Response: map[string]any{"result": ""}}, last[0])
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: []byte{0, 1}}, last[1])
	assert.Equal(t, genai.FunctionResponse{Name: "ls", Response: map[string]any{"error": "denied"}}, last[2])
}

func TestConvertMessages_Rejects(t *testing.T) {
	_, _, err := ConvertMessages(nil)
	assert.Error(t, err)

	_, _, err = ConvertMessages([]core.Message{core.AssistantMessage{Content: []core.Block{core.TextBlock{Text: "hi"}}}})
	assert.Error(t, err)
}
