package events

import (
	"context"
	"sync"

	"github.com/alphadose/haxmap"
)

// LocalSink is an in-process event store used by tests and the console
// runner. Each stream keeps its events in append order; the slice index is
// the event's version.
type LocalSink struct {
	streams *haxmap.Map[string, *stream]
}

type stream struct {
	mu     sync.Mutex
	events []Event
}

// Local returns an empty in-process sink.
func Local() *LocalSink {
	return &LocalSink{
		streams: haxmap.New[string, *stream](),
	}
}

func (s *LocalSink) Append(_ context.Context, event Event) error {
	str, _ := s.streams.GetOrCompute(event.StreamID, func() *stream {
		return &stream{}
	})

	str.mu.Lock()
	str.events = append(str.events, event)
	str.mu.Unlock()
	return nil
}

// Stream returns a snapshot of the events appended to a stream, in order.
func (s *LocalSink) Stream(id string) []Event {
	str, ok := s.streams.Get(id)
	if !ok {
		return nil
	}

	str.mu.Lock()
	defer str.mu.Unlock()
	out := make([]Event, len(str.events))
	copy(out, str.events)
	return out
}

// Len returns the number of events appended to a stream.
func (s *LocalSink) Len(id string) int {
	str, ok := s.streams.Get(id)
	if !ok {
		return 0
	}

	str.mu.Lock()
	defer str.mu.Unlock()
	return len(str.events)
}
