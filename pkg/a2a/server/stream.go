package server

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/jllopis/agora/pkg/a2a"
)

// ErrStreamClosed is returned to the producer once the consumer went away.
var ErrStreamClosed = stderrors.New("stream closed by consumer")

// Stream is the single-producer, single-consumer channel of status events
// of one streaming run. The channel is unbuffered: the producer blocks until
// the consumer has taken the previous event.
type Stream struct {
	events    chan a2a.StatusUpdateEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newStream() *Stream {
	return &Stream{
		events: make(chan a2a.StatusUpdateEvent),
		done:   make(chan struct{}),
	}
}

// Events returns the receive side. It is closed after the final event.
func (s *Stream) Events() <-chan a2a.StatusUpdateEvent {
	return s.events
}

// Close tells the producer to stop emitting. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// emit hands ev to the consumer.
func (s *Stream) emit(ctx context.Context, ev a2a.StatusUpdateEvent) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish closes the receive side; called by the producer exactly once.
func (s *Stream) finish() {
	close(s.events)
}
