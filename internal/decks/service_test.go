package decks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
	"github.com/Iam-samyog/EduCircle/internal/testutil"
)

var (
	admin   = rooms.Actor{UserID: "user-admin", Name: "Ada"}
	creator = rooms.Actor{UserID: "user-creator", Name: "Cleo"}
	member  = rooms.Actor{UserID: "user-member", Name: "Max"}
)

type fixture struct {
	service   *Service
	notes     *notes.Service
	rooms     *rooms.Service
	publisher *testutil.RecordingPublisher
	roomID    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDatabase(t, &rooms.Room{}, &rooms.Participant{}, &rooms.JoinRequest{}, &notes.Note{}, &Deck{})
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	roomService, err := rooms.NewService(rooms.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "ROOM"}})
	if err != nil {
		t.Fatalf("rooms service: %v", err)
	}
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "note"}, Members: roomService})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	publisher := &testutil.RecordingPublisher{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &testutil.SequentialIDs{Prefix: "deck"},
		Members:    roomService,
		Notes:      noteService,
		Publisher:  publisher,
	})
	if err != nil {
		t.Fatalf("decks service: %v", err)
	}
	roomService.AddCascade(service.DeleteByRoom)

	ctx := context.Background()
	view, err := roomService.CreateRoom(ctx, admin, "Chemistry", true)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, actor := range []rooms.Actor{creator, member} {
		if _, err := roomService.JoinRoom(ctx, actor, view.Room.RoomID); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	return fixture{service: service, notes: noteService, rooms: roomService, publisher: publisher, roomID: view.Room.RoomID}
}

func cards(count int) []flashcards.Card {
	out := make([]flashcards.Card, 0, count)
	for index := 1; index <= count; index++ {
		out = append(out, flashcards.Card{Question: fmt.Sprintf("Q%d", index), Answer: fmt.Sprintf("A%d", index)})
	}
	return out
}

func TestDeleteFlashcardByNonOwnerLeavesDeckUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, err := f.service.CreateDeck(ctx, creator, f.roomID, "Acids", cards(5))
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	eventsBefore := len(f.publisher.Events())

	_, err = f.service.DeleteFlashcard(ctx, member, deck.DeckID, 2)
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if apperr.CodeOf(err) != "decks.delete_flashcard.permission_denied" {
		t.Fatalf("unexpected code %q", apperr.CodeOf(err))
	}
	stored, err := f.service.GetDeck(ctx, member, deck.DeckID)
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if len(stored.Flashcards) != 5 || stored.Version != deck.Version {
		t.Fatalf("deck changed after denied delete: %#v", stored)
	}
	for index, card := range stored.Flashcards {
		if card != deck.Flashcards[index] {
			t.Fatalf("card %d changed: %#v", index, card)
		}
	}
	if len(f.publisher.Events()) != eventsBefore {
		t.Fatalf("denied delete must not publish events")
	}
}

func TestCreatorAndAdminCanEditCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, err := f.service.CreateDeck(ctx, creator, f.roomID, "Acids", cards(5))
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}

	afterDelete, err := f.service.DeleteFlashcard(ctx, creator, deck.DeckID, 2)
	if err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	if len(afterDelete.Flashcards) != 4 || afterDelete.Flashcards[2].Question != "Q4" {
		t.Fatalf("unexpected cards %#v", afterDelete.Flashcards)
	}
	afterUpdate, err := f.service.UpdateFlashcard(ctx, admin, deck.DeckID, 0, flashcards.Card{Question: "pH of water?", Answer: "7"})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if afterUpdate.Flashcards[0].Answer != "7" || afterUpdate.Version != 3 {
		t.Fatalf("unexpected deck %#v", afterUpdate)
	}
	afterAdd, err := f.service.AddFlashcard(ctx, creator, deck.DeckID, flashcards.Card{Question: "Base?", Answer: "pH > 7"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(afterAdd.Flashcards) != 5 {
		t.Fatalf("expected 5 cards after add, got %d", len(afterAdd.Flashcards))
	}
	if f.publisher.Last().Type != realtime.EventDeckChanged {
		t.Fatalf("expected deck-changed event")
	}
}

func TestReplaceFlashcardsWithStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck, err := f.service.CreateDeck(ctx, creator, f.roomID, "Acids", cards(2))
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	if _, err := f.service.AddFlashcard(ctx, creator, deck.DeckID, flashcards.Card{Question: "Q3", Answer: "A3"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	stale := deck.Version
	if _, err := f.service.ReplaceFlashcards(ctx, creator, deck.DeckID, cards(1), &stale); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	replaced, err := f.service.ReplaceFlashcards(ctx, creator, deck.DeckID, cards(1), nil)
	if err != nil {
		t.Fatalf("unguarded replace: %v", err)
	}
	if len(replaced.Flashcards) != 1 {
		t.Fatalf("expected one card, got %d", len(replaced.Flashcards))
	}
}

func TestCreateFromNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	note, err := f.notes.SaveNote(ctx, member, f.roomID, notes.NoteInput{FileName: "acids.pdf", Content: "Acids donate protons.", Flashcards: cards(3)})
	if err != nil {
		t.Fatalf("save note: %v", err)
	}
	deck, err := f.service.CreateFromNote(ctx, creator, note.NoteID, "")
	if err != nil {
		t.Fatalf("create from note: %v", err)
	}
	if deck.Title != "acids.pdf" || deck.SourceNoteID != note.NoteID || len(deck.Flashcards) != 3 {
		t.Fatalf("unexpected deck %#v", deck)
	}
	if deck.CreatedBy != creator.UserID {
		t.Fatalf("deck should belong to the extracting user")
	}

	empty, err := f.notes.SaveNote(ctx, member, f.roomID, notes.NoteInput{Content: "No cards here."})
	if err != nil {
		t.Fatalf("save note: %v", err)
	}
	if _, err := f.service.CreateFromNote(ctx, creator, empty.NoteID, "Empty"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for note without cards, got %v", err)
	}
}

func TestRenameListAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.service.CreateDeck(ctx, creator, f.roomID, "First", nil)
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	if _, err := f.service.CreateDeck(ctx, member, f.roomID, "Second", cards(1)); err != nil {
		t.Fatalf("create deck: %v", err)
	}
	if _, err := f.service.CreateDeck(ctx, member, f.roomID, "  ", nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected blank title to be rejected, got %v", err)
	}

	if _, err := f.service.RenameDeck(ctx, member, first.DeckID, "Stolen"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected rename by non-owner to be denied, got %v", err)
	}
	renamed, err := f.service.RenameDeck(ctx, creator, first.DeckID, "Renamed")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Title != "Renamed" {
		t.Fatalf("unexpected title %q", renamed.Title)
	}

	decks, err := f.service.ListDecks(ctx, member, f.roomID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(decks) != 2 || decks[0].Title != "Second" {
		t.Fatalf("expected newest deck first, got %#v", decks)
	}
	if err := f.service.DeleteDeck(ctx, admin, first.DeckID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := f.service.GetDeck(ctx, admin, first.DeckID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected deleted deck to be gone, got %v", err)
	}
}
