package events

import (
	"context"
	"time"
)

// Kind names a stream event. Kinds equal the event names used on the wire.
type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// Kinds lists every event kind a dialog stream can carry, in the order they
// appear within a turn.
func Kinds() []Kind {
	return []Kind{KindTurnStarted, KindTokenReceived, KindTurnEnded, KindDialogEnded}
}

// Stream is a live, ordered source of dialog events for one session.
//
// Events performs the subscription when iterated and yields events in
// arrival order. A non-nil error ends the stream; consumers must stop
// iterating after it. Close is immediate and makes a running iteration end
// without an error.
type Stream interface {
	Events(ctx context.Context) func(func(Event, error) bool)
	Close() error
}
