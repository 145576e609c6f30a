package flashcards

import (
	"errors"
	"fmt"
	"time"
)

// ErrVersionMismatch indicates that the stored array moved past the version
// the caller edited.
var ErrVersionMismatch = errors.New("flashcards: version mismatch")

// EditKind enumerates supported array mutations.
type EditKind string

const (
	EditAppend     EditKind = "append"
	EditReplaceAt  EditKind = "replace_at"
	EditRemoveAt   EditKind = "remove_at"
	EditReplaceAll EditKind = "replace_all"
)

// Edit describes one mutation against a stored flashcard array.
type Edit struct {
	Kind  EditKind
	Index int
	Card  Card
	Cards []Card
	// ExpectedVersion, when set, must equal the stored version.
	ExpectedVersion *int64
}

// State is the versioned array as persisted by a note or deck.
type State struct {
	Cards            []Card
	Version          int64
	UpdatedAtSeconds int64
}

// Resolve applies edit to current and returns the next state. It never
// mutates current.Cards.
func Resolve(current State, edit Edit, appliedAt time.Time) (State, error) {
	if edit.ExpectedVersion != nil && *edit.ExpectedVersion != current.Version {
		return current, fmt.Errorf("%w: expected %d, stored %d", ErrVersionMismatch, *edit.ExpectedVersion, current.Version)
	}

	var (
		cards []Card
		err   error
	)
	switch edit.Kind {
	case EditAppend:
		if err := edit.Card.Validate(); err != nil {
			return current, err
		}
		cards = Append(current.Cards, edit.Card)
	case EditReplaceAt:
		if err := edit.Card.Validate(); err != nil {
			return current, err
		}
		cards, err = ReplaceAt(current.Cards, edit.Index, edit.Card)
	case EditRemoveAt:
		cards, err = RemoveAt(current.Cards, edit.Index)
	case EditReplaceAll:
		if err := ValidateAll(edit.Cards); err != nil {
			return current, err
		}
		cards = Clone(edit.Cards)
	default:
		return current, fmt.Errorf("%w: unknown edit %q", ErrInvalidCard, edit.Kind)
	}
	if err != nil {
		return current, err
	}

	next := State{
		Cards:            cards,
		Version:          current.Version + 1,
		UpdatedAtSeconds: appliedAt.Unix(),
	}
	if next.Version <= 0 {
		next.Version = 1
	}
	if next.UpdatedAtSeconds < current.UpdatedAtSeconds {
		next.UpdatedAtSeconds = current.UpdatedAtSeconds
	}
	return next, nil
}
