package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7IsOrdered(t *testing.T) {
	provider := NewUUIDv7()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("invalid uuid %q: %v", first, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
	if first >= second {
		t.Fatalf("expected monotonically increasing ids, got %s then %s", first, second)
	}
}
