package notes

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/Iam-samyog/EduCircle/internal/flashcards"
)

const (
	maxIdentifierLength = 190
	maxFileNameLength   = 255
	maxContentBytes     = 2 << 20
)

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidContent indicates that note content is empty or too large.
	ErrInvalidContent = errors.New("notes: invalid content")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Note is an uploaded study document with its AI-derived flashcards.
type Note struct {
	NoteID            string                               `gorm:"column:note_id;primaryKey;size:190;not null"`
	RoomID            string                               `gorm:"column:room_id;size:32;not null;index:idx_notes_room_uploaded,priority:1"`
	UploadedBy        string                               `gorm:"column:uploaded_by;size:190;not null"`
	UploadedByName    string                               `gorm:"column:uploaded_by_name;size:190;not null;default:''"`
	FileName          string                               `gorm:"column:file_name;size:255;not null;default:''"`
	Content           string                               `gorm:"column:content;type:text;not null"`
	Summary           string                               `gorm:"column:summary;type:text;not null;default:''"`
	KeyPoints         datatypes.JSONSlice[string]          `gorm:"column:key_points"`
	Flashcards        datatypes.JSONSlice[flashcards.Card] `gorm:"column:flashcards"`
	Version           int64                                `gorm:"column:version;not null;default:1"`
	UploadedAtSeconds int64                                `gorm:"column:uploaded_at_s;not null;index:idx_notes_room_uploaded,priority:2"`
	UpdatedAtSeconds  int64                                `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Cards returns the flashcards as a plain, non-nil slice.
func (n Note) Cards() []flashcards.Card {
	return flashcards.Clone(n.Flashcards)
}

// CardState exposes the versioned flashcard array.
func (n Note) CardState() flashcards.State {
	return flashcards.State{Cards: n.Cards(), Version: n.Version, UpdatedAtSeconds: n.UpdatedAtSeconds}
}

// NoteInput carries the fields supplied when saving a note.
type NoteInput struct {
	FileName   string
	Content    string
	Summary    string
	KeyPoints  []string
	Flashcards []flashcards.Card
}

func (in NoteInput) normalized() (NoteInput, error) {
	out := NoteInput{
		FileName:  strings.TrimSpace(in.FileName),
		Content:   strings.TrimSpace(in.Content),
		Summary:   strings.TrimSpace(in.Summary),
		KeyPoints: make([]string, 0, len(in.KeyPoints)),
	}
	if out.Content == "" {
		return NoteInput{}, fmt.Errorf("%w: empty", ErrInvalidContent)
	}
	if len(out.Content) > maxContentBytes {
		return NoteInput{}, fmt.Errorf("%w: exceeds %d bytes", ErrInvalidContent, maxContentBytes)
	}
	if runes := []rune(out.FileName); len(runes) > maxFileNameLength {
		out.FileName = string(runes[:maxFileNameLength])
	}
	for _, point := range in.KeyPoints {
		if trimmed := strings.TrimSpace(point); trimmed != "" {
			out.KeyPoints = append(out.KeyPoints, trimmed)
		}
	}
	if err := flashcards.ValidateAll(in.Flashcards); err != nil {
		return NoteInput{}, err
	}
	out.Flashcards = flashcards.Clone(in.Flashcards)
	return out, nil
}

func datatypesCards(cards []flashcards.Card) datatypes.JSONSlice[flashcards.Card] {
	return datatypes.JSONSlice[flashcards.Card](flashcards.Clone(cards))
}

func datatypesStrings(values []string) datatypes.JSONSlice[string] {
	out := make([]string, len(values))
	copy(out, values)
	return datatypes.JSONSlice[string](out)
}
