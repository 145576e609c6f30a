package flashcards

import (
	"errors"
	"testing"
)

func sampleCards() []Card {
	return []Card{
		{Question: "Q1", Answer: "A1"},
		{Question: "Q2", Answer: "A2"},
		{Question: "Q3", Answer: "A3"},
	}
}

func TestNewCardRejectsBlankSides(t *testing.T) {
	if _, err := NewCard("  ", "answer"); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected invalid card for blank question, got %v", err)
	}
	if _, err := NewCard("question", ""); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected invalid card for blank answer, got %v", err)
	}
	card, err := NewCard(" What is Go? ", " A language ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.Question != "What is Go?" || card.Answer != "A language" {
		t.Fatalf("expected trimmed card, got %#v", card)
	}
}

func TestRemoveAtLeavesInputUntouched(t *testing.T) {
	cards := sampleCards()
	updated, err := RemoveAt(cards, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated) != 2 || updated[1].Question != "Q3" {
		t.Fatalf("unexpected result: %#v", updated)
	}
	if len(cards) != 3 || cards[1].Question != "Q2" {
		t.Fatalf("input slice was modified: %#v", cards)
	}
}

func TestPositionalEditsRejectOutOfRange(t *testing.T) {
	cards := sampleCards()
	for _, index := range []int{-1, 3, 10} {
		if _, err := RemoveAt(cards, index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("remove index %d: expected out of range, got %v", index, err)
		}
		if _, err := ReplaceAt(cards, index, Card{Question: "x", Answer: "y"}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("replace index %d: expected out of range, got %v", index, err)
		}
	}
}

func TestAppendAndReplace(t *testing.T) {
	cards := Append(sampleCards(), Card{Question: "Q4", Answer: "A4"})
	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}
	replaced, err := ReplaceAt(cards, 0, Card{Question: "New", Answer: "Card"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replaced[0].Question != "New" || cards[0].Question != "Q1" {
		t.Fatalf("unexpected replace semantics: %#v / %#v", replaced[0], cards[0])
	}
}

func TestCloneNeverNil(t *testing.T) {
	if Clone(nil) == nil {
		t.Fatalf("expected non-nil clone")
	}
}
