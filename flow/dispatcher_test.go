package flow

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callsN(n int) []core.ToolCall {
	calls := make([]core.ToolCall, n)
	for i := range calls {
		calls[i] = core.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "t"}
	}
	return calls
}

func okResult(call core.ToolCall) core.ToolResultMessage {
	return core.ToolResultMessage{ToolCallID: call.ID, ToolName: call.Name, Content: []core.Block{core.TextBlock{Text: call.ID}}}
}

func ids(results []core.ToolResultMessage) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ToolCallID
	}
	return out
}

func TestParallelDispatcher_PreservesOrder(t *testing.T) {
	calls := callsN(4)
	// Earlier calls finish later.
	exec := func(_ context.Context, call core.ToolCall) core.ToolResultMessage {
		var idx int
		_, _ = fmt.Sscanf(call.ID, "c%d", &idx)
		time.Sleep(time.Duration(4-idx) * 10 * time.Millisecond)
		return okResult(call)
	}

	results := NewParallelDispatcher(ParallelConfig{}).Dispatch(context.Background(), calls, exec)
	assert.Equal(t, []string{"c0", "c1", "c2", "c3"}, ids(results))
}

func TestParallelDispatcher_BoundsConcurrency(t *testing.T) {
	var active, peak int32
	exec := func(_ context.Context, call core.ToolCall) core.ToolResultMessage {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return okResult(call)
	}

	results := NewParallelDispatcher(ParallelConfig{MaxParallel: 2}).Dispatch(context.Background(), callsN(6), exec)
	require.Len(t, results, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSequentialDispatcher_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := func(_ context.Context, call core.ToolCall) core.ToolResultMessage {
		if call.ID == "c1" {
			cancel()
		}
		return okResult(call)
	}

	results := SequentialDispatcher{}.Dispatch(ctx, callsN(3), exec)
	assert.Equal(t, []string{"c0", "c1"}, ids(results))
}

func TestParallelDispatcher_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	exec := func(_ context.Context, call core.ToolCall) core.ToolResultMessage {
		atomic.AddInt32(&ran, 1)
		return okResult(call)
	}

	results := NewParallelDispatcher(ParallelConfig{}).Dispatch(ctx, callsN(3), exec)
	assert.Empty(t, results)
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestParallelDispatcher_CancelWhileWaitingForSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var executed int32
	exec := func(_ context.Context, call core.ToolCall) core.ToolResultMessage {
		atomic.AddInt32(&executed, 1)
		cancel()
		// Hold the only slot until the dispatcher has seen the cancellation.
		time.Sleep(20 * time.Millisecond)
		return okResult(call)
	}

	results := NewParallelDispatcher(ParallelConfig{MaxParallel: 1}).Dispatch(ctx, callsN(3), exec)
	assert.Equal(t, []string{"c0"}, ids(results))
	assert.Equal(t, int32(1), atomic.LoadInt32(&executed))
}

func TestNewDispatcher(t *testing.T) {
	d, err := NewDispatcher("", 0)
	require.NoError(t, err)
	assert.IsType(t, SequentialDispatcher{}, d)

	d, err = NewDispatcher(DispatchParallel, 3)
	require.NoError(t, err)
	assert.IsType(t, &ParallelDispatcher{}, d)

	_, err = NewDispatcher("round-robin", 0)
	assert.Error(t, err)
}

func TestCoordinator_ParallelDispatchKeepsCallOrder(t *testing.T) {
	calls := callsN(3)
	for i := range calls {
		calls[i].Name = "slow"
		calls[i].Arguments = map[string]any{"id": calls[i].ID}
	}
	conn := model.NewMockConnector().AddTurn(model.MockTurn{ToolCalls: calls}, model.MockTurn{Text: "ok"})

	tools := tool.NewRegistry()
	tools.Register(tool.NewFunctionTool("slow", "sleeps for early calls", nil, func(_ context.Context, args map[string]any) (any, error) {
		if args["id"] == "c0" {
			time.Sleep(20 * time.Millisecond)
		}
		return args["id"], nil
	}))

	d, err := NewDispatcher(DispatchParallel, 0)
	require.NoError(t, err)
	res, err := NewCoordinator(conn, mockModel, tools, func(o *Options) { o.Dispatcher = d }).Run(context.Background(), userInput("go"))
	require.NoError(t, err)

	added := res.Appended(1)
	require.Len(t, added, 5)
	for i, msg := range added[1:4] {
		result := msg.(core.ToolResultMessage)
		assert.Equal(t, calls[i].ID, result.ToolCallID)
		assert.Equal(t, calls[i].ID, result.Text())
	}
}
