package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/Iam-samyog/EduCircle/internal/chat"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func newMessageTracker(clock *manualClock) *Tracker[MessageEntity] {
	return NewTracker[MessageEntity](TrackerConfig{Timeout: 10 * time.Second, Clock: clock.Now})
}

func TestTrackerPendingToConfirmed(t *testing.T) {
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	tracker := newMessageTracker(clock)
	localID, err := tracker.Insert(MessageEntity{Message: chat.Message{UserID: "ann", Text: "hello"}}, 0)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	view := tracker.Apply(nil)
	if len(view.Items) != 1 || view.Items[0].Status != StatusPending {
		t.Fatalf("expected pending item, got %#v", view.Items)
	}
	view = tracker.Apply([]MessageEntity{message("m1", "ann", "hello", 5)})
	if len(view.Confirmed) != 1 || view.Confirmed[0] != localID || len(view.Items) != 1 {
		t.Fatalf("expected confirmation, got %#v", view)
	}
	if _, ok := tracker.Get(localID); ok {
		t.Fatalf("confirmed entity should be forgotten")
	}
	if err := tracker.MarkFailed(localID, nil); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected unknown entity after confirmation, got %v", err)
	}
}

func TestTrackerTimeoutAndResend(t *testing.T) {
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	tracker := newMessageTracker(clock)
	localID, _ := tracker.Insert(MessageEntity{Message: chat.Message{UserID: "ann", Text: "lost"}}, 0)

	clock.now = clock.now.Add(11 * time.Second)
	view := tracker.Apply(nil)
	if view.Items[0].Status != StatusFailed {
		t.Fatalf("expected failed after timeout, got %s", view.Items[0].Status)
	}
	entity, _ := tracker.Get(localID)
	if !errors.Is(entity.Err, ErrTimedOut) {
		t.Fatalf("expected timeout error, got %v", entity.Err)
	}
	if err := tracker.MarkFailed(localID, errors.New("again")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed to failed is not a transition, got %v", err)
	}

	value, err := tracker.Resend(localID, 0)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if value.Text != "lost" {
		t.Fatalf("unexpected resend value %#v", value)
	}
	if _, err := tracker.Resend(localID, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resend of pending entity must fail, got %v", err)
	}
	if expired := tracker.Expire(); len(expired) != 0 {
		t.Fatalf("resend should restart the timeout, got %v", expired)
	}
}

func TestTrackerDiscardOnlyFailed(t *testing.T) {
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	tracker := newMessageTracker(clock)
	first, _ := tracker.Insert(MessageEntity{Message: chat.Message{UserID: "ann", Text: "one"}}, 0)
	second, _ := tracker.Insert(MessageEntity{Message: chat.Message{UserID: "ann", Text: "two"}}, 0)

	if err := tracker.Discard(first); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending entity cannot be discarded, got %v", err)
	}
	if err := tracker.MarkFailed(first, errors.New("rejected")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := tracker.Discard(first); err != nil {
		t.Fatalf("discard: %v", err)
	}
	outstanding := tracker.Outstanding()
	if len(outstanding) != 1 || outstanding[0].LocalID != second {
		t.Fatalf("unexpected outstanding %#v", outstanding)
	}
	if err := tracker.Discard("missing"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected unknown entity, got %v", err)
	}
}
