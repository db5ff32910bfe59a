// Package flow provides the agentic loop for agentwire.
//
// A Coordinator drives repeated connector calls: it drains each canonical
// event stream, appends one assistant message per turn, dispatches the tool
// calls the turn finished and appends their results in call order before the
// next call. The loop ends on a stop that is not tool use, a terminal error,
// a protocol violation, cancellation or the turn cap.
package flow

import (
	"github.com/hupe1980/agentwire/core"
	"github.com/hupe1980/agentwire/logging"
	"github.com/hupe1980/agentwire/model"
	"github.com/hupe1980/agentwire/tool"
)

// State is the coordinator's position in the loop.
type State string

const (
	// StateStreaming consumes one connector call.
	StateStreaming State = "streaming"
	// StateAwaitingTools executes the calls of the just-finished turn.
	StateAwaitingTools State = "awaiting_tools"
	// StateFinished is terminal.
	StateFinished State = "finished"
)

// DefaultMaxTurns caps connector calls per run when Options.MaxTurns is unset.
const DefaultMaxTurns = 25

// Options configures a Coordinator.
type Options struct {
	Logger logging.Logger

	// SystemPrompt is sent with every connector call.
	SystemPrompt string
	// MaxTurns caps connector calls per run.
	MaxTurns int
	// Workspace is the context tools are resolved against once per run.
	Workspace tool.ResolveContext
	// Dispatcher executes the calls of a turn; sequential by default.
	Dispatcher    Dispatcher
	StreamOptions model.StreamOptions

	// OnEvent receives every validated canonical event as it arrives.
	OnEvent func(ev core.Event)
	// OnMessage receives every message appended to history.
	OnMessage func(msg core.Message)
	// OnStateChange receives every state transition.
	OnStateChange func(from, to State)
}

// Result describes a finished run.
type Result struct {
	RunID string
	// Messages is the full history: the input followed by every appended message.
	Messages []core.Message
	// Turns is the number of connector calls made.
	Turns int
	// StopReason is the classification of the last completed turn.
	StopReason core.StopReason
	Usage      core.Usage
	// TurnCapReached is set when the loop stopped while the model still
	// requested tools.
	TurnCapReached bool
	// Cancelled is set when the context ended the run; Err holds the context error.
	Cancelled bool
	// Err is the terminal stream failure, protocol violation or context error.
	Err error
}

// Appended returns the messages added during the run.
func (r *Result) Appended(inputLen int) []core.Message {
	if inputLen >= len(r.Messages) {
		return nil
	}
	return r.Messages[inputLen:]
}

// FinalText returns the text of the last assistant message.
func (r *Result) FinalText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if am, ok := r.Messages[i].(core.AssistantMessage); ok {
			return am.Text()
		}
	}
	return ""
}
