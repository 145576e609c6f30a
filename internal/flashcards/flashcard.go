package flashcards

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxQuestionLength = 2000
	maxAnswerLength   = 4000
)

var (
	// ErrInvalidCard indicates that a flashcard is missing its question or answer.
	ErrInvalidCard = errors.New("flashcards: invalid card")
	// ErrIndexOutOfRange indicates that a positional edit targets a missing card.
	ErrIndexOutOfRange = errors.New("flashcards: index out of range")
)

// Card is a question/answer pair embedded in a note or a deck.
type Card struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewCard trims and validates raw input.
func NewCard(question, answer string) (Card, error) {
	card := Card{Question: strings.TrimSpace(question), Answer: strings.TrimSpace(answer)}
	if err := card.Validate(); err != nil {
		return Card{}, err
	}
	return card, nil
}

// Validate checks that both sides are present and within storage bounds.
func (c Card) Validate() error {
	if strings.TrimSpace(c.Question) == "" {
		return fmt.Errorf("%w: empty question", ErrInvalidCard)
	}
	if strings.TrimSpace(c.Answer) == "" {
		return fmt.Errorf("%w: empty answer", ErrInvalidCard)
	}
	if len(c.Question) > maxQuestionLength {
		return fmt.Errorf("%w: question exceeds %d bytes", ErrInvalidCard, maxQuestionLength)
	}
	if len(c.Answer) > maxAnswerLength {
		return fmt.Errorf("%w: answer exceeds %d bytes", ErrInvalidCard, maxAnswerLength)
	}
	return nil
}

// ValidateAll validates every card and reports the first offending index.
func ValidateAll(cards []Card) error {
	for index, card := range cards {
		if err := card.Validate(); err != nil {
			return fmt.Errorf("card %d: %w", index, err)
		}
	}
	return nil
}

// Append returns a new slice with card appended; the input is not modified.
func Append(cards []Card, card Card) []Card {
	out := make([]Card, 0, len(cards)+1)
	out = append(out, cards...)
	return append(out, card)
}

// ReplaceAt returns a copy with the card at index replaced.
func ReplaceAt(cards []Card, index int, card Card) ([]Card, error) {
	if index < 0 || index >= len(cards) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(cards))
	}
	out := Clone(cards)
	out[index] = card
	return out, nil
}

// RemoveAt returns a copy without the card at index.
func RemoveAt(cards []Card, index int) ([]Card, error) {
	if index < 0 || index >= len(cards) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(cards))
	}
	out := make([]Card, 0, len(cards)-1)
	out = append(out, cards[:index]...)
	return append(out, cards[index+1:]...), nil
}

// Clone copies the slice, always returning a non-nil result.
func Clone(cards []Card) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}
