package events

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "chimera.events"

// NATSSink appends events by publishing them on a per-stream subject.
// Publishes on one connection are ordered, which carries the per-stream
// append order through to subscribers.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NATS returns a sink publishing under the default subject prefix.
func NATS(conn *nats.Conn) *NATSSink {
	return &NATSSink{
		conn:   conn,
		prefix: defaultSubjectPrefix,
	}
}

func (s *NATSSink) Append(_ context.Context, event Event) error {
	eb, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.prefix+"."+event.StreamID, eb)
}
