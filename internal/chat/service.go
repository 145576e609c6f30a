package chat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
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
	opServiceNew   = "chat.service.new"
	opSendMessage  = "chat.send_message"
	opListMessages = "chat.list_messages"
	opDeleteByRoom = "chat.delete_by_room"
)

// MembershipResolver reports the caller's standing in a room.
type MembershipResolver interface {
	Membership(ctx context.Context, roomID, userID string) (rooms.Membership, error)
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Members    MembershipResolver
	Publisher  realtime.Publisher
	Logger     *zap.Logger
}

// Service appends and lists room chat messages.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	members    MembershipResolver
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

// SendMessage appends a message from a room participant.
func (s *Service) SendMessage(ctx context.Context, actor rooms.Actor, roomID, rawText string) (Message, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return Message{}, err
	}
	text, err := normalizeText(rawText)
	if err != nil {
		return Message{}, apperr.New(opSendMessage, "invalid_text", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	messageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSendMessage, "id_generation_failed", err, zap.String("room_id", membership.RoomID))
		return Message{}, apperr.New(opSendMessage, "id_generation_failed", err)
	}
	userName := membership.Name
	if userName == "" {
		userName = actor.DisplayName()
	}
	message := Message{
		MessageID: messageID,
		RoomID:    membership.RoomID,
		UserID:    actor.UserID,
		UserName:  userName,
		Text:      text,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := rooms.LockRoom(tx, membership.RoomID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(opSendMessage, "room_not_found", apperr.Wrap(apperr.ErrNotFound, "room %s", membership.RoomID))
			}
			s.logError(opSendMessage, "room_lock_failed", err, zap.String("room_id", membership.RoomID))
			return apperr.New(opSendMessage, "room_lock_failed", err)
		}
		var last Message
		err := tx.Where("room_id = ?", membership.RoomID).
			Order("timestamp_ms DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			s.logError(opSendMessage, "last_message_select_failed", err, zap.String("room_id", membership.RoomID))
			return apperr.New(opSendMessage, "last_message_select_failed", err)
		}
		message.TimestampMillis = nextTimestamp(s.clock().UTC().UnixMilli(), last.TimestampMillis)
		if err := tx.Create(&message).Error; err != nil {
			s.logError(opSendMessage, "message_insert_failed", err, zap.String("room_id", membership.RoomID))
			return apperr.New(opSendMessage, "message_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Message{}, txErr
	}
	event := realtime.Event{RoomID: message.RoomID, Type: realtime.EventMessageCreated, EntityIDs: []string{message.MessageID}, ActorID: actor.UserID}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logError(opSendMessage, "publish_failed", err, zap.String("room_id", message.RoomID))
	}
	return message, nil
}

// ListMessages returns the room history in ascending timestamp order. A
// positive limit keeps only the most recent limit messages.
func (s *Service) ListMessages(ctx context.Context, actor rooms.Actor, roomID string, limit int) ([]Message, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	var messages []Message
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", membership.RoomID).
		Order("timestamp_ms DESC, message_id DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		s.logError(opListMessages, "query_failed", err, zap.String("room_id", membership.RoomID))
		return nil, apperr.New(opListMessages, "query_failed", err)
	}
	for left, right := 0, len(messages)-1; left < right; left, right = left+1, right-1 {
		messages[left], messages[right] = messages[right], messages[left]
	}
	return messages, nil
}

// DeleteByRoom removes a room's history inside the caller's transaction.
func (s *Service) DeleteByRoom(tx *gorm.DB, roomID string) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&Message{}).Error; err != nil {
		s.logError(opDeleteByRoom, "messages_delete_failed", err, zap.String("room_id", roomID))
		return err
	}
	return nil
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
	s.logger.Error("chat service error", attrs...)
}
