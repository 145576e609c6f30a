package notes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingMembership = errors.New("membership resolver is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew         = "notes.service.new"
	opSaveNote           = "notes.save_note"
	opListNotes          = "notes.list_notes"
	opGetNote            = "notes.get_note"
	opUpdateContent      = "notes.update_content"
	opReplaceFlashcards  = "notes.replace_flashcards"
	opAddFlashcard       = "notes.add_flashcard"
	opUpdateFlashcard    = "notes.update_flashcard"
	opDeleteFlashcard    = "notes.delete_flashcard"
	opDeleteNote         = "notes.delete_note"
	opDeleteByRoom       = "notes.delete_by_room"
	reasonPermission     = "permission_denied"
	reasonNoteNotFound   = "note_not_found"
	reasonVersionChanged = "version_conflict"
)

// MembershipResolver reports the caller's standing in a room.
type MembershipResolver interface {
	Membership(ctx context.Context, roomID, userID string) (rooms.Membership, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Members    MembershipResolver
	Publisher  realtime.Publisher
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service stores room notes and their embedded flashcards.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	members    MembershipResolver
	publisher  realtime.Publisher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Members == nil {
		return nil, apperr.New(opServiceNew, "missing_membership", errMissingMembership)
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
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// SaveNote stores a note in roomID on behalf of a participant.
func (s *Service) SaveNote(ctx context.Context, actor rooms.Actor, roomID string, input NoteInput) (Note, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return Note{}, err
	}
	normalized, err := input.normalized()
	if err != nil {
		return Note{}, apperr.New(opSaveNote, "invalid_input", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSaveNote, "id_generation_failed", err, zap.String("room_id", membership.RoomID))
		return Note{}, apperr.New(opSaveNote, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	uploaderName := membership.Name
	if uploaderName == "" {
		uploaderName = actor.DisplayName()
	}
	note := Note{
		NoteID:            noteID,
		RoomID:            membership.RoomID,
		UploadedBy:        actor.UserID,
		UploadedByName:    uploaderName,
		FileName:          normalized.FileName,
		Content:           normalized.Content,
		Summary:           normalized.Summary,
		KeyPoints:         datatypesStrings(normalized.KeyPoints),
		Flashcards:        datatypesCards(normalized.Flashcards),
		Version:           1,
		UploadedAtSeconds: now,
		UpdatedAtSeconds:  now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opSaveNote, "note_insert_failed", err, zap.String("room_id", membership.RoomID))
		return Note{}, apperr.New(opSaveNote, "note_insert_failed", err)
	}
	s.publish(ctx, opSaveNote, note, actor.UserID)
	return note, nil
}

// ListNotes returns a room's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, actor rooms.Actor, roomID string) ([]Note, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return nil, err
	}
	var notes []Note
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", membership.RoomID).
		Order("uploaded_at_s DESC, note_id DESC").
		Find(&notes).Error; err != nil {
		s.logError(opListNotes, "query_failed", err, zap.String("room_id", membership.RoomID))
		return nil, apperr.New(opListNotes, "query_failed", err)
	}
	return notes, nil
}

// GetNote loads a note visible to the actor.
func (s *Service) GetNote(ctx context.Context, actor rooms.Actor, rawNoteID string) (Note, error) {
	note, _, err := s.loadAuthorized(ctx, opGetNote, actor, rawNoteID, false)
	return note, err
}

// UpdateContent rewrites a note's text. Uploader or room admin only.
func (s *Service) UpdateContent(ctx context.Context, actor rooms.Actor, rawNoteID, content string) (Note, error) {
	current, _, err := s.loadAuthorized(ctx, opUpdateContent, actor, rawNoteID, true)
	if err != nil {
		return Note{}, err
	}
	normalized, err := NoteInput{Content: content}.normalized()
	if err != nil {
		return Note{}, apperr.New(opUpdateContent, "invalid_input", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockNote(tx, opUpdateContent, current.NoteID)
		if err != nil {
			return err
		}
		locked.Content = normalized.Content
		locked.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Model(&Note{}).Where("note_id = ?", locked.NoteID).Updates(map[string]any{
			"content":      locked.Content,
			"updated_at_s": locked.UpdatedAtSeconds,
		}).Error; err != nil {
			s.logError(opUpdateContent, "note_update_failed", err, zap.String("note_id", locked.NoteID))
			return apperr.New(opUpdateContent, "note_update_failed", err)
		}
		updated = locked
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	s.publish(ctx, opUpdateContent, updated, actor.UserID)
	return updated, nil
}

// ReplaceFlashcards overwrites the whole array. A non-nil expectedVersion
// turns the write into a compare-and-swap.
func (s *Service) ReplaceFlashcards(ctx context.Context, actor rooms.Actor, rawNoteID string, cards []flashcards.Card, expectedVersion *int64) (Note, error) {
	return s.editFlashcards(ctx, opReplaceFlashcards, actor, rawNoteID, flashcards.Edit{
		Kind:            flashcards.EditReplaceAll,
		Cards:           cards,
		ExpectedVersion: expectedVersion,
	})
}

// AddFlashcard appends one card.
func (s *Service) AddFlashcard(ctx context.Context, actor rooms.Actor, rawNoteID string, card flashcards.Card) (Note, error) {
	return s.editFlashcards(ctx, opAddFlashcard, actor, rawNoteID, flashcards.Edit{Kind: flashcards.EditAppend, Card: card})
}

// UpdateFlashcard replaces the card at index.
func (s *Service) UpdateFlashcard(ctx context.Context, actor rooms.Actor, rawNoteID string, index int, card flashcards.Card) (Note, error) {
	return s.editFlashcards(ctx, opUpdateFlashcard, actor, rawNoteID, flashcards.Edit{Kind: flashcards.EditReplaceAt, Index: index, Card: card})
}

// DeleteFlashcard removes the card at index.
func (s *Service) DeleteFlashcard(ctx context.Context, actor rooms.Actor, rawNoteID string, index int) (Note, error) {
	return s.editFlashcards(ctx, opDeleteFlashcard, actor, rawNoteID, flashcards.Edit{Kind: flashcards.EditRemoveAt, Index: index})
}

func (s *Service) editFlashcards(ctx context.Context, operation string, actor rooms.Actor, rawNoteID string, edit flashcards.Edit) (Note, error) {
	current, _, err := s.loadAuthorized(ctx, operation, actor, rawNoteID, true)
	if err != nil {
		return Note{}, err
	}
	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockNote(tx, operation, current.NoteID)
		if err != nil {
			return err
		}
		next, err := flashcards.Resolve(locked.CardState(), edit, s.clock().UTC())
		if err != nil {
			return editFailure(operation, err)
		}
		result := tx.Model(&Note{}).
			Where("note_id = ? AND version = ?", locked.NoteID, locked.Version).
			Updates(map[string]any{
				"flashcards":   datatypesCards(next.Cards),
				"version":      next.Version,
				"updated_at_s": next.UpdatedAtSeconds,
			})
		if result.Error != nil {
			s.logError(operation, "note_update_failed", result.Error, zap.String("note_id", locked.NoteID))
			return apperr.New(operation, "note_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(operation, reasonVersionChanged, apperr.Wrap(apperr.ErrConflict, "note %s changed concurrently", locked.NoteID))
		}
		locked.Flashcards = datatypesCards(next.Cards)
		locked.Version = next.Version
		locked.UpdatedAtSeconds = next.UpdatedAtSeconds
		updated = locked
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	s.publish(ctx, operation, updated, actor.UserID)
	return updated, nil
}

// DeleteNote removes a note. Uploader or room admin only.
func (s *Service) DeleteNote(ctx context.Context, actor rooms.Actor, rawNoteID string) error {
	current, _, err := s.loadAuthorized(ctx, opDeleteNote, actor, rawNoteID, true)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("note_id = ?", current.NoteID).Delete(&Note{})
	if result.Error != nil {
		s.logError(opDeleteNote, "note_delete_failed", result.Error, zap.String("note_id", current.NoteID))
		return apperr.New(opDeleteNote, "note_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDeleteNote, reasonNoteNotFound, apperr.Wrap(apperr.ErrNotFound, "note %s", current.NoteID))
	}
	s.publish(ctx, opDeleteNote, current, actor.UserID)
	return nil
}

// DeleteByRoom removes every note of a room inside the caller's transaction.
func (s *Service) DeleteByRoom(tx *gorm.DB, roomID string) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&Note{}).Error; err != nil {
		s.logError(opDeleteByRoom, "notes_delete_failed", err, zap.String("room_id", roomID))
		return err
	}
	return nil
}

// loadAuthorized fetches a note and the actor's membership in its room. With
// mutate set, the actor must be the uploader or a room admin.
func (s *Service) loadAuthorized(ctx context.Context, operation string, actor rooms.Actor, rawNoteID string, mutate bool) (Note, rooms.Membership, error) {
	noteID, err := NewNoteID(rawNoteID)
	if err != nil {
		return Note{}, rooms.Membership{}, apperr.New(operation, "invalid_note_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	var note Note
	err = s.db.WithContext(ctx).Where("note_id = ?", noteID.String()).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, rooms.Membership{}, apperr.New(operation, reasonNoteNotFound, apperr.Wrap(apperr.ErrNotFound, "note %s", noteID))
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("note_id", noteID.String()))
		return Note{}, rooms.Membership{}, apperr.New(operation, "query_failed", err)
	}
	membership, err := s.members.Membership(ctx, note.RoomID, actor.UserID)
	if err != nil {
		return Note{}, rooms.Membership{}, err
	}
	if mutate && !membership.CanModify(note.UploadedBy) {
		return Note{}, rooms.Membership{}, apperr.New(operation, reasonPermission,
			apperr.Wrap(apperr.ErrPermissionDenied, "only the uploader or a room admin can change note %s", noteID))
	}
	return note, membership, nil
}

func (s *Service) lockNote(tx *gorm.DB, operation, noteID string) (Note, error) {
	var note Note
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("note_id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, apperr.New(operation, reasonNoteNotFound, apperr.Wrap(apperr.ErrNotFound, "note %s", noteID))
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err, zap.String("note_id", noteID))
		return Note{}, apperr.New(operation, "note_select_failed", err)
	}
	return note, nil
}

func (s *Service) publish(ctx context.Context, operation string, note Note, actorID string) {
	event := realtime.Event{RoomID: note.RoomID, Type: realtime.EventNoteChanged, EntityIDs: []string{note.NoteID}, ActorID: actorID}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logError(operation, "publish_failed", err, zap.String("room_id", note.RoomID))
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
	s.logger.Error("notes service error", attrs...)
}

func editFailure(operation string, err error) error {
	switch {
	case errors.Is(err, flashcards.ErrVersionMismatch):
		return apperr.New(operation, reasonVersionChanged, apperr.Wrap(apperr.ErrConflict, "%v", err))
	case errors.Is(err, flashcards.ErrIndexOutOfRange):
		return apperr.New(operation, "index_out_of_range", apperr.Wrap(apperr.ErrNotFound, "%v", err))
	default:
		return apperr.New(operation, "invalid_flashcard", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
}
