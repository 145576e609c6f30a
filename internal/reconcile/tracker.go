package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownEntity indicates that no optimistic entity has the local id.
	ErrUnknownEntity = errors.New("reconcile: unknown entity")
	// ErrInvalidTransition indicates a state change outside
	// Pending→Confirmed, Pending→Failed and Failed→Pending.
	ErrInvalidTransition = errors.New("reconcile: invalid transition")
	// ErrTimedOut is recorded on entities that stayed pending too long.
	ErrTimedOut = errors.New("reconcile: confirmation timed out")
)

// DefaultPendingTimeout bounds how long an entity may stay pending.
const DefaultPendingTimeout = 15 * time.Second

// IDProvider issues local identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Timeout    time.Duration
	Clock      func() time.Time
	IDProvider IDProvider
}

type tracked[T Entity] struct {
	entity     Optimistic[T]
	insertedAt time.Time
}

// Tracker owns the optimistic entities of one list and drives their state
// machine. It is safe for concurrent use.
type Tracker[T Entity] struct {
	mu       sync.Mutex
	timeout  time.Duration
	clock    func() time.Time
	ids      IDProvider
	nextSeq  int64
	entities map[string]*tracked[T]
}

// NewTracker applies defaults for missing configuration.
func NewTracker[T Entity](cfg TrackerConfig) *Tracker[T] {
	tracker := &Tracker[T]{
		timeout:  cfg.Timeout,
		clock:    cfg.Clock,
		ids:      cfg.IDProvider,
		entities: map[string]*tracked[T]{},
	}
	if tracker.timeout <= 0 {
		tracker.timeout = DefaultPendingTimeout
	}
	if tracker.clock == nil {
		tracker.clock = time.Now
	}
	return tracker
}

// Insert registers a pending value and returns its local id.
func (t *Tracker[T]) Insert(value T, watermark int64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSeq++
	localID := fmt.Sprintf("local-%d", t.nextSeq)
	if t.ids != nil {
		generated, err := t.ids.NewID()
		if err != nil {
			return "", err
		}
		localID = generated
	}
	t.entities[localID] = &tracked[T]{
		entity: Optimistic[T]{
			LocalID:   localID,
			Value:     value,
			Status:    StatusPending,
			Seq:       t.nextSeq,
			Watermark: watermark,
		},
		insertedAt: t.clock(),
	}
	return localID, nil
}

// Apply expires overdue entities, reconciles against snapshot and forgets
// the entities the snapshot confirmed.
func (t *Tracker[T]) Apply(snapshot []T) View[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()
	view := Reconcile(snapshot, t.snapshotLocked())
	for _, localID := range view.Confirmed {
		delete(t.entities, localID)
	}
	return view
}

// Expire moves overdue pending entities to failed and returns their ids.
func (t *Tracker[T]) Expire() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expireLocked()
}

// MarkFailed records a rejected write.
func (t *Tracker[T]) MarkFailed(localID string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, err := t.lookupLocked(localID, StatusPending)
	if err != nil {
		return err
	}
	entry.entity.Status = StatusFailed
	entry.entity.Err = cause
	return nil
}

// Resend moves a failed entity back to pending and returns its value so the
// caller can repeat the write.
func (t *Tracker[T]) Resend(localID string, watermark int64) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, err := t.lookupLocked(localID, StatusFailed)
	if err != nil {
		var zero T
		return zero, err
	}
	entry.entity.Status = StatusPending
	entry.entity.Err = nil
	entry.entity.Watermark = watermark
	entry.insertedAt = t.clock()
	return entry.entity.Value, nil
}

// Discard drops a failed entity.
func (t *Tracker[T]) Discard(localID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.lookupLocked(localID, StatusFailed); err != nil {
		return err
	}
	delete(t.entities, localID)
	return nil
}

// Get returns a copy of the tracked entity.
func (t *Tracker[T]) Get(localID string) (Optimistic[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entities[localID]
	if !ok {
		return Optimistic[T]{}, false
	}
	return entry.entity, true
}

// Outstanding returns every tracked entity in insertion order.
func (t *Tracker[T]) Outstanding() []Optimistic[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker[T]) lookupLocked(localID string, want Status) (*tracked[T], error) {
	entry, ok := t.entities[localID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, localID)
	}
	if entry.entity.Status != want {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, localID, entry.entity.Status, want)
	}
	return entry, nil
}

func (t *Tracker[T]) expireLocked() []string {
	now := t.clock()
	var expired []string
	for localID, entry := range t.entities {
		if entry.entity.Status == StatusPending && now.Sub(entry.insertedAt) >= t.timeout {
			entry.entity.Status = StatusFailed
			entry.entity.Err = ErrTimedOut
			expired = append(expired, localID)
		}
	}
	sort.Strings(expired)
	return expired
}

func (t *Tracker[T]) snapshotLocked() []Optimistic[T] {
	out := make([]Optimistic[T], 0, len(t.entities))
	for _, entry := range t.entities {
		out = append(out, entry.entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
