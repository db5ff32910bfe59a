package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/logging"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/stream"
	"github.com/hupe1980/agentwire/tool"
)

// callRecorder is implemented by loggers that keep per-call metrics, such as
// *logging.AgentLogger.
type callRecorder interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
}

// Coordinator runs the agentic loop against one connector and model.
type Coordinator struct {
	connector model.Connector
	model     model.Descriptor
	tools     *tool.Registry
	opts      Options
}

// NewCoordinator creates a coordinator. tools may be nil for a tool-less loop.
func NewCoordinator(connector model.Connector, m model.Descriptor, tools *tool.Registry, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Logger:   logging.NoOpLogger{},
		MaxTurns: DefaultMaxTurns,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = SequentialDispatcher{}
	}
	return &Coordinator{connector: connector, model: m, tools: tools, opts: opts}
}

// run holds the per-invocation state. History is owned exclusively by it.
type run struct {
	*Coordinator
	id      string
	state   State
	history []core.Message
	set     *tool.Set
	result  *Result
}

// Run drives the loop from messages until it finishes. Failures of a turn
// are reported on the Result; the returned error is reserved for calls that
// cannot start.
func (c *Coordinator) Run(ctx context.Context, messages []core.Message) (*Result, error) {
	if c.connector == nil {
		return nil, errors.New("flow: no connector")
	}
	if len(messages) == 0 {
		return nil, errors.New("flow: empty history")
	}

	r := &run{
		Coordinator: c,
		id:          core.NewID(),
		history:     append(make([]core.Message, 0, len(messages)+8), messages...),
		set:         c.resolveTools(),
	}
	r.result = &Result{RunID: r.id}

	start := time.Now()
	r.loop(ctx)
	r.result.Messages = r.history

	c.opts.Logger.Info("flow.run.finished",
		"run_id", r.id,
		"turns", r.result.Turns,
		"stop_reason", string(r.result.StopReason),
		"turn_cap", r.result.TurnCapReached,
		"cancelled", r.result.Cancelled,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return r.result, nil
}

func (c *Coordinator) resolveTools() *tool.Set {
	if c.tools == nil {
		return nil
	}
	return c.tools.ResolveAll(c.opts.Workspace)
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	if r.opts.OnStateChange != nil && from != to {
		r.opts.OnStateChange(from, to)
	}
}

func (r *run) appendMessage(msg core.Message) {
	r.history = append(r.history, msg)
	if r.opts.OnMessage != nil {
		r.opts.OnMessage(msg)
	}
}

func (r *run) loop(ctx context.Context) {
	defer r.transition(StateFinished)

	limiter := core.NewTurnLimiter(r.opts.MaxTurns)
	for {
		if err := ctx.Err(); err != nil {
			r.cancelled(err)
			return
		}
		if err := limiter.Increment(); err != nil {
			r.result.TurnCapReached = true
			r.opts.Logger.Warn("flow.turn_cap", "run_id", r.id, "max_turns", r.opts.MaxTurns)
			return
		}
		r.result.Turns = limiter.Count()

		r.transition(StateStreaming)
		calls, ok := r.turn(ctx)
		if !ok || len(calls) == 0 || r.result.StopReason != core.StopReasonToolUse {
			return
		}

		r.transition(StateAwaitingTools)
		results := r.opts.Dispatcher.Dispatch(ctx, calls, r.execute)
		for _, res := range results {
			r.appendMessage(res)
		}
		if err := ctx.Err(); err != nil {
			r.cancelled(err)
			return
		}
	}
}

func (r *run) cancelled(err error) {
	r.result.Cancelled = true
	r.result.Err = err
	r.opts.Logger.Info("flow.run.cancelled", "run_id", r.id, "error", err.Error())
}

// turn drains one connector call. It returns the finished calls and whether
// the loop may continue. Nothing is appended for a violating or cancelled turn.
func (r *run) turn(ctx context.Context) ([]core.ToolCall, bool) {
	log := r.opts.Logger
	log.Debug("flow.turn.start", "run_id", r.id, "turn", r.result.Turns, "model", r.model.ID, "tools", r.set.Len())

	mctx := model.Context{
		SystemPrompt: r.opts.SystemPrompt,
		Messages:     append([]core.Message(nil), r.history...),
		Tools:        r.set.Definitions(),
	}

	start := time.Now()
	st := r.connector.Stream(ctx, r.model, mctx, r.opts.StreamOptions)
	defer func() { _ = st.Close() }()

	var (
		text     strings.Builder
		calls    []core.ToolCall
		terminal *core.Event
	)
	validator := stream.NewValidator()
	for st.Next() {
		ev := st.Current()
		if err := validator.Check(ev); err != nil {
			log.Error("flow.protocol_violation", "run_id", r.id, "turn", r.result.Turns, "error", err.Error())
			r.result.Err = err
			r.recordLLM(start, nil, err)
			return nil, false
		}
		if r.opts.OnEvent != nil {
			r.opts.OnEvent(ev)
		}

		switch ev.Type {
		case core.EventTextDelta:
			text.WriteString(ev.Delta)
		case core.EventToolCallEnd:
			calls = append(calls, *ev.ToolCall)
		case core.EventDone, core.EventError:
			terminal = &ev
		}
	}

	if err := st.Err(); err != nil {
		r.cancelled(err)
		return nil, false
	}
	if terminal == nil {
		err := &core.ProtocolError{Reason: "missing terminal event"}
		log.Error("flow.protocol_violation", "run_id", r.id, "turn", r.result.Turns, "error", err.Error())
		r.result.Err = err
		return nil, false
	}

	msg := core.AssistantMessage{
		Provider:  r.model.Provider,
		Model:     r.model.ID,
		Timestamp: time.Now().UTC(),
	}
	if text.Len() > 0 {
		msg.Content = append(msg.Content, core.TextBlock{Text: text.String()})
	}

	if terminal.Type == core.EventError {
		// Calls of a failed turn are dropped: they would never get results.
		msg.StopReason = core.StopReasonError
		msg.ErrorMessage = terminal.ErrorMessage()
		r.result.StopReason = core.StopReasonError
		r.result.Err = terminal.Err
		if r.result.Err == nil {
			r.result.Err = errors.New(msg.ErrorMessage)
		}
		log.Warn("model.stream.error", "run_id", r.id, "turn", r.result.Turns, "error", msg.ErrorMessage)
		r.appendMessage(msg)
		r.recordLLM(start, nil, r.result.Err)
		return nil, false
	}

	for _, call := range calls {
		msg.Content = append(msg.Content, core.ToolCallBlock{ToolCall: call})
	}
	msg.StopReason = terminal.StopReason
	msg.Usage = terminal.Usage
	r.result.StopReason = terminal.StopReason
	if u := terminal.Usage; u != nil {
		r.result.Usage.InputTokens += u.InputTokens
		r.result.Usage.OutputTokens += u.OutputTokens
		r.result.Usage.TotalTokens += u.TotalTokens
	}
	r.appendMessage(msg)
	r.recordLLM(start, terminal.Usage, nil)

	log.Debug("flow.turn.end", "run_id", r.id, "turn", r.result.Turns, "stop_reason", string(terminal.StopReason), "tool_calls", len(calls))
	return calls, true
}

// execute runs one call against the resolved set. Missing tools, validation
// failures, tool errors and panics all become error-flagged results.
func (r *run) execute(ctx context.Context, call core.ToolCall) (res core.ToolResultMessage) {
	log := r.opts.Logger

	rt, ok := r.set.Lookup(call.Name)
	if !ok {
		log.Warn("flow.tool.missing", "run_id", r.id, "tool", call.Name, "call_id", call.ID)
		return core.NewToolErrorResult(call, fmt.Sprintf("tool not available: %s", call.Name))
	}

	start := time.Now()
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
			log.Error("flow.tool.panic", "run_id", r.id, "tool", call.Name, "recover", rec, "stack", string(err.(*panicErr).stack))
			res = core.NewToolErrorResult(call, err.Error())
		}
		dur := time.Since(start)
		log.Info("flow.tool.executed",
			"run_id", r.id,
			"tool", call.Name,
			"call_id", call.ID,
			"duration_ms", dur.Milliseconds(),
			"error", err != nil,
		)
		if rec, ok := log.(callRecorder); ok {
			rec.LogToolCall(call.Name, dur, err == nil, err)
		}
	}()

	out, err := r.tools.Execute(ctx, rt, call.ID, call.Arguments)
	if err != nil {
		return core.NewToolErrorResult(call, err.Error())
	}
	return core.ToolResultMessage{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    out.Content,
		Details:    out.Details,
		Timestamp:  time.Now().UTC(),
	}
}

func (r *run) recordLLM(start time.Time, usage *core.Usage, err error) {
	rec, ok := r.opts.Logger.(callRecorder)
	if !ok {
		return
	}
	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
	}
	rec.LogLLMCall(r.model.ID, tokens, time.Since(start), err == nil, err)
}
