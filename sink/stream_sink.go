package sink

import (
	"context"
	"krysselista/domain/event"
	"log/slog"
	"sync"
)

// StreamSink buffers a viewer's events for one live connection.
// A full buffer drops the event: the next ThreadsDerived carries the whole state anyway.
type StreamSink struct {
	log    *slog.Logger
	mu     sync.Mutex
	events chan event.DomainEvent
	closed bool
}

func NewStreamSink(log *slog.Logger, capacity int) *StreamSink {
	if capacity <= 0 {
		capacity = 1
	}
	return &StreamSink{log: log, events: make(chan event.DomainEvent, capacity)}
}

func (s *StreamSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.events <- e:
	default:
		s.log.Debug("Stream buffer full, event dropped", "viewer", e.ViewerID())
	}
	return nil
}

func (s *StreamSink) Events() <-chan event.DomainEvent {
	return s.events
}

func (s *StreamSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
