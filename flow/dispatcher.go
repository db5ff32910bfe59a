package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/logging"
)

// DispatchMode selects how the tool calls of one turn are executed.
type DispatchMode string

const (
	// DispatchSequential runs calls one after another in call order.
	DispatchSequential DispatchMode = "sequential"
	// DispatchParallel runs calls concurrently; results keep call order.
	DispatchParallel DispatchMode = "parallel"
)

// Executor turns one finished tool call into its tool-result message. It must
// not panic and never returns an error; failures are error-flagged results.
type Executor func(ctx context.Context, call core.ToolCall) core.ToolResultMessage

// Dispatcher executes the tool calls collected from one turn. Implementations
// must:
//   - Return results in the order of calls, whatever the execution order
//   - Stop starting new calls once ctx is cancelled
//   - Omit results of calls that were never started
type Dispatcher interface {
	Dispatch(ctx context.Context, calls []core.ToolCall, exec Executor) []core.ToolResultMessage
}

// NewDispatcher returns the dispatcher for mode. maxParallel bounds the
// parallel dispatcher; values below 1 mean one worker per call.
func NewDispatcher(mode DispatchMode, maxParallel int) (Dispatcher, error) {
	switch mode {
	case DispatchSequential, "":
		return SequentialDispatcher{}, nil
	case DispatchParallel:
		return NewParallelDispatcher(ParallelConfig{MaxParallel: maxParallel}), nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", mode)
	}
}

// SequentialDispatcher executes calls one at a time.
type SequentialDispatcher struct{}

// Dispatch implements Dispatcher.
func (SequentialDispatcher) Dispatch(ctx context.Context, calls []core.ToolCall, exec Executor) []core.ToolResultMessage {
	results := make([]core.ToolResultMessage, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}
		results = append(results, exec(ctx, call))
	}
	return results
}

// ParallelConfig configures the parallel dispatcher.
type ParallelConfig struct {
	MaxParallel int // 0 or <1 => one worker per call
	Logger      logging.Logger
}

// ParallelDispatcher executes calls concurrently with bounded parallelism and
// buffers the results to restore call order.
type ParallelDispatcher struct {
	cfg ParallelConfig
}

// NewParallelDispatcher constructs a new dispatcher with the given config.
func NewParallelDispatcher(cfg ParallelConfig) *ParallelDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &ParallelDispatcher{cfg: cfg}
}

// Dispatch implements Dispatcher.
func (d *ParallelDispatcher) Dispatch(ctx context.Context, calls []core.ToolCall, exec Executor) []core.ToolResultMessage {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return SequentialDispatcher{}.Dispatch(ctx, calls, exec)
	}

	maxPar := d.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.ToolResultMessage, n)
	started := make([]bool, n)
	var wg sync.WaitGroup

	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
dispatch:
	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		started[i] = true
		wg.Add(1)
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = exec(ctx, call)
		}(i, calls[i])
	}

	wg.Wait()

	ordered := make([]core.ToolResultMessage, 0, n)
	for i := range results {
		if started[i] {
			ordered = append(ordered, results[i])
		}
	}

	d.cfg.Logger.Debug(
		"flow.tools.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return ordered
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("tool panicked: %v", p.val) }
