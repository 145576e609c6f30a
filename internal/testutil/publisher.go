package testutil

import (
	"context"
	"sync"

	"github.com/Iam-samyog/EduCircle/internal/realtime"
)

// RecordingPublisher captures published realtime events.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Last returns the most recent event, or the zero value.
func (p *RecordingPublisher) Last() realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return realtime.Event{}
	}
	return p.events[len(p.events)-1]
}
