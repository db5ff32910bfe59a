package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/agentwire/core"
)

// ErrUnexpectedEnd is carried by the error event synthesized when a source
// runs dry without producing a terminal event.
var ErrUnexpectedEnd = errors.New("stream ended without terminal event")

// Source decodes one provider wire stream into canonical events. Next is only
// called when the consumer pulls, so a source performs network reads lazily.
// Sources never emit start; Stream does. Next returns io.EOF once the wire is
// exhausted; any other error is treated as a transport failure.
type Source interface {
	Next(ctx context.Context) ([]core.Event, error)
	Close() error
}

// Stream is a pull-based sequence of canonical events:
//
//	for st.Next() {
//		ev := st.Current()
//	}
//	if err := st.Err(); err != nil {
//		// cancelled: no terminal event was delivered
//	}
//
// It emits start first, converts source failures into a terminal error event,
// stops after the terminal event and releases the source when the sequence
// ends or the context is cancelled.
type Stream struct {
	ctx     context.Context
	src     Source
	pending []core.Event
	cur     core.Event

	started    bool
	terminated bool
	closed     bool
	err        error
}

// New wraps a source in a Stream bound to ctx.
func New(ctx context.Context, src Source) *Stream {
	return &Stream{ctx: ctx, src: src}
}

// FromEvents builds a Stream that replays a fixed event list after start.
// Connectors over non-streaming transports use it to synthesize the sequence
// eagerly.
func FromEvents(ctx context.Context, events ...core.Event) *Stream {
	return New(ctx, &sliceSource{events: events})
}

// Failed builds a Stream that yields start followed by a single error event.
func Failed(ctx context.Context, err error) *Stream {
	return FromEvents(ctx, core.NewErrorEvent(err))
}

// Next advances to the next event. It returns false once the terminal event
// has been consumed, after cancellation or after Close.
func (s *Stream) Next() bool {
	if s.closed || s.terminated {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.cancel(err)
		return false
	}

	if !s.started {
		s.started = true
		s.cur = core.NewStartEvent()
		return true
	}

	for len(s.pending) == 0 {
		events, err := s.src.Next(s.ctx)
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			s.cancel(ctxErr)
			return false
		}
		s.pending = append(s.pending, events...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !hasTerminal(s.pending) {
					s.pending = append(s.pending, core.NewErrorEvent(ErrUnexpectedEnd))
				}
			} else if !hasTerminal(s.pending) {
				s.pending = append(s.pending, core.NewErrorEvent(err))
			}
			break
		}
	}

	s.cur = s.pending[0]
	s.pending = s.pending[1:]
	if s.cur.IsTerminal() {
		s.terminated = true
		s.pending = nil
		_ = s.Close()
	}
	return true
}

// Current returns the event produced by the last successful Next.
func (s *Stream) Current() core.Event { return s.cur }

// Err returns the context error when the stream was cancelled before its
// terminal event. It is nil for streams that ended with done or error.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying source. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.src.Close(); err != nil {
		return fmt.Errorf("close stream source: %w", err)
	}
	return nil
}

func (s *Stream) cancel(err error) {
	s.err = err
	s.pending = nil
	_ = s.Close()
}

// Collect drains the stream into a slice.
func Collect(s *Stream) []core.Event {
	var events []core.Event
	for s.Next() {
		events = append(events, s.Current())
	}
	return events
}

func hasTerminal(events []core.Event) bool {
	for _, ev := range events {
		if ev.IsTerminal() {
			return true
		}
	}
	return false
}

type sliceSource struct {
	events []core.Event
	done   bool
}

func (s *sliceSource) Next(context.Context) ([]core.Event, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.events, nil
}

func (s *sliceSource) Close() error { return nil }
