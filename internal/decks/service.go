package decks

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingMembership = errors.New("membership resolver is required")
	errMissingNotes      = errors.New("note reader is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew        = "decks.service.new"
	opCreateDeck        = "decks.create_deck"
	opCreateFromNote    = "decks.create_from_note"
	opListDecks         = "decks.list_decks"
	opGetDeck           = "decks.get_deck"
	opRenameDeck        = "decks.rename_deck"
	opReplaceFlashcards = "decks.replace_flashcards"
	opAddFlashcard      = "decks.add_flashcard"
	opUpdateFlashcard   = "decks.update_flashcard"
	opDeleteFlashcard   = "decks.delete_flashcard"
	opDeleteDeck        = "decks.delete_deck"
	opDeleteByRoom      = "decks.delete_by_room"
)

// MembershipResolver reports the caller's standing in a room.
type MembershipResolver interface {
	Membership(ctx context.Context, roomID, userID string) (rooms.Membership, error)
}

// NoteReader loads a note the actor can see.
type NoteReader interface {
	GetNote(ctx context.Context, actor rooms.Actor, noteID string) (notes.Note, error)
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Members    MembershipResolver
	Notes      NoteReader
	Publisher  realtime.Publisher
	Logger     *zap.Logger
}

// Service manages flashcard decks.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	members    MembershipResolver
	notes      NoteReader
	publisher  realtime.Publisher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Database == nil:
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	case cfg.IDProvider == nil:
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	case cfg.Members == nil:
		return nil, apperr.New(opServiceNew, "missing_membership", errMissingMembership)
	case cfg.Notes == nil:
		return nil, apperr.New(opServiceNew, "missing_notes", errMissingNotes)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		members:    cfg.Members,
		notes:      cfg.Notes,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// CreateDeck adds a deck owned by the actor.
func (s *Service) CreateDeck(ctx context.Context, actor rooms.Actor, roomID, title string, cards []flashcards.Card) (Deck, error) {
	return s.create(ctx, opCreateDeck, actor, roomID, title, cards, "")
}

// CreateFromNote copies a note's flashcards into a new deck.
func (s *Service) CreateFromNote(ctx context.Context, actor rooms.Actor, noteID, title string) (Deck, error) {
	note, err := s.notes.GetNote(ctx, actor, noteID)
	if err != nil {
		return Deck{}, err
	}
	if len(note.Flashcards) == 0 {
		return Deck{}, apperr.New(opCreateFromNote, "no_flashcards", apperr.Wrap(apperr.ErrInvalidInput, "note %s has no flashcards", note.NoteID))
	}
	if title == "" {
		title = note.FileName
	}
	if title == "" {
		title = "Flashcards"
	}
	return s.create(ctx, opCreateFromNote, actor, note.RoomID, title, note.Cards(), note.NoteID)
}

func (s *Service) create(ctx context.Context, operation string, actor rooms.Actor, roomID, rawTitle string, cards []flashcards.Card, sourceNoteID string) (Deck, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return Deck{}, err
	}
	title, err := normalizeTitle(rawTitle)
	if err != nil {
		return Deck{}, apperr.New(operation, "invalid_title", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	if err := flashcards.ValidateAll(cards); err != nil {
		return Deck{}, apperr.New(operation, "invalid_flashcard", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	deckID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err, zap.String("room_id", membership.RoomID))
		return Deck{}, apperr.New(operation, "id_generation_failed", err)
	}
	creatorName := membership.Name
	if creatorName == "" {
		creatorName = actor.DisplayName()
	}
	now := s.clock().UTC().Unix()
	deck := Deck{
		DeckID:           deckID,
		RoomID:           membership.RoomID,
		CreatedBy:        actor.UserID,
		CreatedByName:    creatorName,
		Title:            title,
		SourceNoteID:     sourceNoteID,
		Flashcards:       jsonCards(cards),
		Version:          1,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&deck).Error; err != nil {
		s.logError(operation, "deck_insert_failed", err, zap.String("room_id", membership.RoomID))
		return Deck{}, apperr.New(operation, "deck_insert_failed", err)
	}
	s.publish(ctx, operation, deck, actor.UserID)
	return deck, nil
}

// ListDecks returns a room's decks, newest first.
func (s *Service) ListDecks(ctx context.Context, actor rooms.Actor, roomID string) ([]Deck, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return nil, err
	}
	var decks []Deck
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", membership.RoomID).
		Order("created_at_s DESC, deck_id DESC").
		Find(&decks).Error; err != nil {
		s.logError(opListDecks, "query_failed", err, zap.String("room_id", membership.RoomID))
		return nil, apperr.New(opListDecks, "query_failed", err)
	}
	return decks, nil
}

// GetDeck loads one deck visible to the actor.
func (s *Service) GetDeck(ctx context.Context, actor rooms.Actor, rawDeckID string) (Deck, error) {
	return s.loadAuthorized(ctx, opGetDeck, actor, rawDeckID, false)
}

// RenameDeck changes a deck's title. Creator or room admin only.
func (s *Service) RenameDeck(ctx context.Context, actor rooms.Actor, rawDeckID, rawTitle string) (Deck, error) {
	current, err := s.loadAuthorized(ctx, opRenameDeck, actor, rawDeckID, true)
	if err != nil {
		return Deck{}, err
	}
	title, err := normalizeTitle(rawTitle)
	if err != nil {
		return Deck{}, apperr.New(opRenameDeck, "invalid_title", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	current.Title = title
	current.UpdatedAtSeconds = s.clock().UTC().Unix()
	if err := s.db.WithContext(ctx).Model(&Deck{}).Where("deck_id = ?", current.DeckID).Updates(map[string]any{
		"title":        current.Title,
		"updated_at_s": current.UpdatedAtSeconds,
	}).Error; err != nil {
		s.logError(opRenameDeck, "deck_update_failed", err, zap.String("deck_id", current.DeckID))
		return Deck{}, apperr.New(opRenameDeck, "deck_update_failed", err)
	}
	s.publish(ctx, opRenameDeck, current, actor.UserID)
	return current, nil
}

// ReplaceFlashcards overwrites the whole array; expectedVersion guards it.
func (s *Service) ReplaceFlashcards(ctx context.Context, actor rooms.Actor, rawDeckID string, cards []flashcards.Card, expectedVersion *int64) (Deck, error) {
	return s.editFlashcards(ctx, opReplaceFlashcards, actor, rawDeckID, flashcards.Edit{
		Kind:            flashcards.EditReplaceAll,
		Cards:           cards,
		ExpectedVersion: expectedVersion,
	})
}

// AddFlashcard appends one card.
func (s *Service) AddFlashcard(ctx context.Context, actor rooms.Actor, rawDeckID string, card flashcards.Card) (Deck, error) {
	return s.editFlashcards(ctx, opAddFlashcard, actor, rawDeckID, flashcards.Edit{Kind: flashcards.EditAppend, Card: card})
}

// UpdateFlashcard replaces the card at index.
func (s *Service) UpdateFlashcard(ctx context.Context, actor rooms.Actor, rawDeckID string, index int, card flashcards.Card) (Deck, error) {
	return s.editFlashcards(ctx, opUpdateFlashcard, actor, rawDeckID, flashcards.Edit{Kind: flashcards.EditReplaceAt, Index: index, Card: card})
}

// DeleteFlashcard removes the card at index.
func (s *Service) DeleteFlashcard(ctx context.Context, actor rooms.Actor, rawDeckID string, index int) (Deck, error) {
	return s.editFlashcards(ctx, opDeleteFlashcard, actor, rawDeckID, flashcards.Edit{Kind: flashcards.EditRemoveAt, Index: index})
}

func (s *Service) editFlashcards(ctx context.Context, operation string, actor rooms.Actor, rawDeckID string, edit flashcards.Edit) (Deck, error) {
	current, err := s.loadAuthorized(ctx, operation, actor, rawDeckID, true)
	if err != nil {
		return Deck{}, err
	}
	var updated Deck
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked Deck
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("deck_id = ?", current.DeckID).Take(&locked).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(operation, "deck_not_found", apperr.Wrap(apperr.ErrNotFound, "deck %s", current.DeckID))
		}
		if err != nil {
			s.logError(operation, "deck_select_failed", err, zap.String("deck_id", current.DeckID))
			return apperr.New(operation, "deck_select_failed", err)
		}
		next, err := flashcards.Resolve(locked.CardState(), edit, s.clock().UTC())
		if err != nil {
			return editFailure(operation, err)
		}
		result := tx.Model(&Deck{}).
			Where("deck_id = ? AND version = ?", locked.DeckID, locked.Version).
			Updates(map[string]any{
				"flashcards":   jsonCards(next.Cards),
				"version":      next.Version,
				"updated_at_s": next.UpdatedAtSeconds,
			})
		if result.Error != nil {
			s.logError(operation, "deck_update_failed", result.Error, zap.String("deck_id", locked.DeckID))
			return apperr.New(operation, "deck_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(operation, "version_conflict", apperr.Wrap(apperr.ErrConflict, "deck %s changed concurrently", locked.DeckID))
		}
		locked.Flashcards = jsonCards(next.Cards)
		locked.Version = next.Version
		locked.UpdatedAtSeconds = next.UpdatedAtSeconds
		updated = locked
		return nil
	})
	if txErr != nil {
		return Deck{}, txErr
	}
	s.publish(ctx, operation, updated, actor.UserID)
	return updated, nil
}

// DeleteDeck removes a deck. Creator or room admin only.
func (s *Service) DeleteDeck(ctx context.Context, actor rooms.Actor, rawDeckID string) error {
	current, err := s.loadAuthorized(ctx, opDeleteDeck, actor, rawDeckID, true)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("deck_id = ?", current.DeckID).Delete(&Deck{})
	if result.Error != nil {
		s.logError(opDeleteDeck, "deck_delete_failed", result.Error, zap.String("deck_id", current.DeckID))
		return apperr.New(opDeleteDeck, "deck_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDeleteDeck, "deck_not_found", apperr.Wrap(apperr.ErrNotFound, "deck %s", current.DeckID))
	}
	s.publish(ctx, opDeleteDeck, current, actor.UserID)
	return nil
}

// DeleteByRoom removes every deck of a room inside the caller's transaction.
func (s *Service) DeleteByRoom(tx *gorm.DB, roomID string) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&Deck{}).Error; err != nil {
		s.logError(opDeleteByRoom, "decks_delete_failed", err, zap.String("room_id", roomID))
		return err
	}
	return nil
}

func (s *Service) loadAuthorized(ctx context.Context, operation string, actor rooms.Actor, rawDeckID string, mutate bool) (Deck, error) {
	deckID, err := NewDeckID(rawDeckID)
	if err != nil {
		return Deck{}, apperr.New(operation, "invalid_deck_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	var deck Deck
	err = s.db.WithContext(ctx).Where("deck_id = ?", deckID.String()).Take(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Deck{}, apperr.New(operation, "deck_not_found", apperr.Wrap(apperr.ErrNotFound, "deck %s", deckID))
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("deck_id", deckID.String()))
		return Deck{}, apperr.New(operation, "query_failed", err)
	}
	membership, err := s.members.Membership(ctx, deck.RoomID, actor.UserID)
	if err != nil {
		return Deck{}, err
	}
	if mutate && !membership.CanModify(deck.CreatedBy) {
		return Deck{}, apperr.New(operation, "permission_denied",
			apperr.Wrap(apperr.ErrPermissionDenied, "only the creator or a room admin can change deck %s", deckID))
	}
	return deck, nil
}

func (s *Service) publish(ctx context.Context, operation string, deck Deck, actorID string) {
	event := realtime.Event{RoomID: deck.RoomID, Type: realtime.EventDeckChanged, EntityIDs: []string{deck.DeckID}, ActorID: actorID}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logError(operation, "publish_failed", err, zap.String("room_id", deck.RoomID))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("decks service error", attrs...)
}

func editFailure(operation string, err error) error {
	switch {
	case errors.Is(err, flashcards.ErrVersionMismatch):
		return apperr.New(operation, "version_conflict", apperr.Wrap(apperr.ErrConflict, "%v", err))
	case errors.Is(err, flashcards.ErrIndexOutOfRange):
		return apperr.New(operation, "index_out_of_range", apperr.Wrap(apperr.ErrNotFound, "%v", err))
	default:
		return apperr.New(operation, "invalid_flashcard", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
}
