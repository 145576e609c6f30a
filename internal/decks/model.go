package decks

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/Iam-samyog/EduCircle/internal/flashcards"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 120
)

var (
	// ErrInvalidDeckID indicates that a deck identifier is empty or exceeds storage bounds.
	ErrInvalidDeckID = errors.New("decks: invalid deck id")
	// ErrInvalidTitle indicates that a deck title is empty or too long.
	ErrInvalidTitle = errors.New("decks: invalid title")
)

// DeckID represents a validated deck identifier.
type DeckID string

// NewDeckID validates raw input and returns a DeckID.
func NewDeckID(rawInput string) (DeckID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDeckID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDeckID, maxIdentifierLength)
	}
	return DeckID(trimmed), nil
}

func (id DeckID) String() string {
	return string(id)
}

// Deck is a user-curated flashcard collection inside a room.
type Deck struct {
	DeckID           string                               `gorm:"column:deck_id;primaryKey;size:190;not null"`
	RoomID           string                               `gorm:"column:room_id;size:32;not null;index:idx_decks_room_created,priority:1"`
	CreatedBy        string                               `gorm:"column:created_by;size:190;not null"`
	CreatedByName    string                               `gorm:"column:created_by_name;size:190;not null;default:''"`
	Title            string                               `gorm:"column:title;size:190;not null"`
	SourceNoteID     string                               `gorm:"column:source_note_id;size:190;not null;default:''"`
	Flashcards       datatypes.JSONSlice[flashcards.Card] `gorm:"column:flashcards"`
	Version          int64                                `gorm:"column:version;not null;default:1"`
	CreatedAtSeconds int64                                `gorm:"column:created_at_s;not null;index:idx_decks_room_created,priority:2"`
	UpdatedAtSeconds int64                                `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Deck) TableName() string {
	return "decks"
}

// Cards returns the flashcards as a plain, non-nil slice.
func (d Deck) Cards() []flashcards.Card {
	return flashcards.Clone(d.Flashcards)
}

// CardState exposes the versioned flashcard array.
func (d Deck) CardState() flashcards.State {
	return flashcards.State{Cards: d.Cards(), Version: d.Version, UpdatedAtSeconds: d.UpdatedAtSeconds}
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if len([]rune(title)) > maxTitleLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxTitleLength)
	}
	return title, nil
}

func jsonCards(cards []flashcards.Card) datatypes.JSONSlice[flashcards.Card] {
	return datatypes.JSONSlice[flashcards.Card](flashcards.Clone(cards))
}
