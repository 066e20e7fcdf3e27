package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DmitrySonora/chimera/pkg/slogx"
)

// Sink is the external ordered event store. Append is expected to assign the
// stream's next version number.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

const defaultQueueSize = 256

// Emitter delivers events to a sink without ever touching the response path:
// Emit never blocks and never fails. A single worker drains the queue, which
// keeps per-stream append order intact. Append failures are logged and
// swallowed; a full queue drops the event with a warning.
type Emitter struct {
	sink  Sink
	queue chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewEmitter starts the delivery worker over the given sink.
func NewEmitter(sink Sink, queueSize int) *Emitter {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	e := &Emitter{
		sink:  sink,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues an event for delivery. It is safe for concurrent use and
// returns immediately.
func (e *Emitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return
	}

	select {
	case e.queue <- event:
	default:
		slog.Warn("event queue full, dropping event",
			slog.String("event_type", event.EventType),
			slog.String("stream_id", event.StreamID))
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for event := range e.queue {
		if err := e.sink.Append(context.Background(), event); err != nil {
			slog.Error("failed to append event",
				slogx.Error(err),
				slog.String("event_type", event.EventType),
				slog.String("stream_id", event.StreamID))
		}
	}
}

// Close drains the queue and stops the worker. Events emitted after Close
// are dropped.
func (e *Emitter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	<-e.done
}
