package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	EventRoomChanged    = "room-changed"
	EventRoomDeleted    = "room-deleted"
	EventNoteChanged    = "note-changed"
	EventDeckChanged    = "deck-changed"
	EventMessageCreated = "message-created"
	EventGoalChanged    = "goal-changed"
	EventHeartbeat      = "heartbeat"

	defaultBufferSize = 16
)

// Event describes a change inside one room. Clients re-query the affected
// collection; events never carry entity bodies.
type Event struct {
	RoomID    string    `json:"roomId"`
	Type      string    `json:"type"`
	EntityIDs []string  `json:"entityIds,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher fans events out to in-process subscribers keyed by room.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a listener for roomID. The returned cleanup is safe to
// call any number of times and also runs when ctx is done.
func (d *Dispatcher) Subscribe(ctx context.Context, roomID string) (<-chan Event, func()) {
	if roomID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Event, d.bufferSize),
	}
	d.register(roomID, sub)

	var once sync.Once
	done := make(chan struct{})
	cleanup := func() {
		once.Do(func() {
			d.unregister(roomID, sub.id)
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return sub.stream, cleanup
}

// Publish delivers event to every current subscriber of its room. Slow
// subscribers drop events instead of blocking the publisher.
func (d *Dispatcher) Publish(event Event) {
	if event.RoomID == "" || event.Type == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.RoomID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions for roomID.
func (d *Dispatcher) SubscriberCount(roomID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[roomID])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(roomID string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[roomID]; !ok {
		d.subscribers[roomID] = make(map[int64]*subscriber)
	}
	d.subscribers[roomID][sub.id] = sub
}

func (d *Dispatcher) unregister(roomID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[roomID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, roomID)
		}
	}
	d.mu.Unlock()
}
