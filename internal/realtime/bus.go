package realtime

import (
	"context"
	"time"
)

// Publisher is what domain services depend on to announce room changes.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus delivers published events to the local Dispatcher, possibly via an
// external broker so that every API instance sees every event.
type Bus interface {
	Publisher
	Start(ctx context.Context) error
	Close() error
}

// LocalBus dispatches directly in-process.
type LocalBus struct {
	dispatcher *Dispatcher
	clock      func() time.Time
}

func NewLocalBus(dispatcher *Dispatcher) *LocalBus {
	return &LocalBus{dispatcher: dispatcher, clock: time.Now}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	if b == nil || b.dispatcher == nil {
		return nil
	}
	b.dispatcher.Publish(stamp(event, b.clock))
	return nil
}

func (b *LocalBus) Start(context.Context) error { return nil }

func (b *LocalBus) Close() error { return nil }

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func stamp(event Event, clock func() time.Time) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = clock().UTC()
	}
	return event
}
