package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/tool"
)

// RecordingTool wraps a handler and records every invocation.
type RecordingTool struct {
	name    string
	handler func(ctx context.Context, args map[string]any) (tool.Result, error)

	mu    sync.Mutex
	calls []core.ToolCall
}

// NewRecordingTool creates a tool named name whose execution is handled by fn.
// A nil fn returns the text "ok".
func NewRecordingTool(name string, fn func(ctx context.Context, args map[string]any) (tool.Result, error)) *RecordingTool {
	if fn == nil {
		fn = func(context.Context, map[string]any) (tool.Result, error) { return tool.TextResult("ok"), nil }
	}
	return &RecordingTool{name: name, handler: fn}
}

// Tool returns the registrable tool.
func (r *RecordingTool) Tool() *tool.Tool {
	return &tool.Tool{
		Name:        r.name,
		Label:       r.name,
		Description: "recording tool " + r.name,
		Execute: func(ctx context.Context, _ tool.ResolveContext, callID string, args map[string]any) (tool.Result, error) {
			r.mu.Lock()
			r.calls = append(r.calls, core.ToolCall{ID: callID, Name: r.name, Arguments: args})
			r.mu.Unlock()
			return r.handler(ctx, args)
		},
	}
}

// Calls returns the recorded invocations in order.
func (r *RecordingTool) Calls() []core.ToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ToolCall(nil), r.calls...)
}
