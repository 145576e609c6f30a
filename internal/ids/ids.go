// Package ids issues entity identifiers.
package ids

import "github.com/google/uuid"

// UUIDv7 issues time-ordered UUID strings.
type UUIDv7 struct{}

// NewUUIDv7 constructs a provider for notes, decks, messages and goals.
func NewUUIDv7() UUIDv7 {
	return UUIDv7{}
}

func (UUIDv7) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
