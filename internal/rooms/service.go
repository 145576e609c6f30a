package rooms

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	errRoomCodeExhausted = errors.New("could not allocate a unique room code")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew        = "rooms.service.new"
	opCreateRoom        = "rooms.create_room"
	opGetRoom           = "rooms.get_room"
	opListForUser       = "rooms.list_for_user"
	opListPublic        = "rooms.list_public"
	opJoinRoom          = "rooms.join_room"
	opRequestJoin       = "rooms.request_join"
	opApproveJoin       = "rooms.approve_join_request"
	opRejectJoin        = "rooms.reject_join_request"
	opUpdateRole        = "rooms.update_participant_role"
	opLeaveRoom         = "rooms.leave_room"
	opUpdateRoom        = "rooms.update_room"
	opDeleteRoom        = "rooms.delete_room"
	opMembership        = "rooms.membership"
	maxRoomCodeAttempts = 5
)

// CascadeFunc removes rows owned by a room inside the deleting transaction.
type CascadeFunc func(tx *gorm.DB, roomID string) error

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Publisher  realtime.Publisher
	Logger     *zap.Logger
	Cascade    []CascadeFunc
}

// Service owns rooms, their participants and pending join requests.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	publisher  realtime.Publisher
	logger     *zap.Logger
	cascade    []CascadeFunc
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		publisher:  publisher,
		logger:     logger,
		cascade:    append([]CascadeFunc(nil), cfg.Cascade...),
	}, nil
}

// AddCascade registers an additional room-owned collection cleanup.
func (s *Service) AddCascade(fn CascadeFunc) {
	if fn != nil {
		s.cascade = append(s.cascade, fn)
	}
}

// CreateRoom persists a room with the actor as its admin creator.
func (s *Service) CreateRoom(ctx context.Context, actor Actor, rawName string, isPublic bool) (RoomView, error) {
	if actor.UserID == "" {
		return RoomView{}, apperr.New(opCreateRoom, "missing_user_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", errMissingUserID))
	}
	name, err := normalizeRoomName(rawName)
	if err != nil {
		return RoomView{}, apperr.New(opCreateRoom, "invalid_name", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}

	now := s.clock().UTC().Unix()
	var view RoomView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roomID, err := s.allocateRoomID(tx)
		if err != nil {
			s.logError(opCreateRoom, "id_generation_failed", err, zap.String("user_id", actor.UserID))
			return apperr.New(opCreateRoom, "id_generation_failed", err)
		}
		room := Room{
			RoomID:           roomID,
			Name:             name,
			CreatedBy:        actor.UserID,
			CreatedByName:    actor.DisplayName(),
			IsPublic:         isPublic,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		if err := tx.Create(&room).Error; err != nil {
			s.logError(opCreateRoom, "room_insert_failed", err, zap.String("room_id", roomID))
			return apperr.New(opCreateRoom, "room_insert_failed", err)
		}
		creator := Participant{
			RoomID:          roomID,
			UserID:          actor.UserID,
			Name:            actor.DisplayName(),
			Role:            RoleAdmin,
			JoinedAtSeconds: now,
		}
		if err := tx.Create(&creator).Error; err != nil {
			s.logError(opCreateRoom, "participant_insert_failed", err, zap.String("room_id", roomID))
			return apperr.New(opCreateRoom, "participant_insert_failed", err)
		}
		view = RoomView{Room: room, Participants: []Participant{creator}, JoinRequests: []JoinRequest{}}
		return nil
	})
	if txErr != nil {
		return RoomView{}, txErr
	}
	s.publish(ctx, opCreateRoom, realtime.Event{RoomID: view.Room.RoomID, Type: realtime.EventRoomChanged, ActorID: actor.UserID})
	return view, nil
}

// GetRoom loads a room. Join requests are only visible to admins, and
// outsiders see a private room's name and visibility without its members.
func (s *Service) GetRoom(ctx context.Context, actor Actor, rawRoomID string) (RoomView, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return RoomView{}, apperr.New(opGetRoom, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	view, err := s.loadView(s.db.WithContext(ctx), roomID)
	if err != nil {
		return RoomView{}, s.storageFailure(opGetRoom, roomID, err)
	}
	participant, member := view.Participant(actor.UserID)
	if !member || participant.Role != RoleAdmin {
		view.JoinRequests = []JoinRequest{}
	}
	if !member && !view.Room.IsPublic {
		view.Participants = []Participant{}
	}
	return view, nil
}

// ListForUser returns every room the user participates in, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]RoomView, error) {
	if userID == "" {
		return nil, apperr.New(opListForUser, "missing_user_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", errMissingUserID))
	}
	db := s.db.WithContext(ctx)
	var rooms []Room
	if err := db.
		Joins("JOIN room_participants ON room_participants.room_id = rooms.room_id").
		Where("room_participants.user_id = ?", userID).
		Order("rooms.created_at_s DESC").
		Find(&rooms).Error; err != nil {
		s.logError(opListForUser, "query_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListForUser, "query_failed", err)
	}
	views, err := s.attach(db, rooms, func(Room) bool { return true }, userID)
	if err != nil {
		s.logError(opListForUser, "participants_query_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListForUser, "participants_query_failed", err)
	}
	return views, nil
}

// ListPublic returns the most recent public rooms.
func (s *Service) ListPublic(ctx context.Context, limit int) ([]RoomView, error) {
	if limit <= 0 || limit > defaultPublicLimit {
		limit = defaultPublicLimit
	}
	db := s.db.WithContext(ctx)
	var rooms []Room
	if err := db.
		Where("is_public = ?", true).
		Order("created_at_s DESC").
		Limit(limit).
		Find(&rooms).Error; err != nil {
		s.logError(opListPublic, "query_failed", err)
		return nil, apperr.New(opListPublic, "query_failed", err)
	}
	views, err := s.attach(db, rooms, func(Room) bool { return false }, "")
	if err != nil {
		s.logError(opListPublic, "participants_query_failed", err)
		return nil, apperr.New(opListPublic, "participants_query_failed", err)
	}
	return views, nil
}

// JoinRoom adds the actor to a public room. Joining twice is a no-op.
func (s *Service) JoinRoom(ctx context.Context, actor Actor, rawRoomID string) (RoomView, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return RoomView{}, apperr.New(opJoinRoom, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	if actor.UserID == "" {
		return RoomView{}, apperr.New(opJoinRoom, "missing_user_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", errMissingUserID))
	}
	changed := false
	var view RoomView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := LockRoom(tx, roomID)
		if err != nil {
			return s.storageFailure(opJoinRoom, roomID, err)
		}
		member, err := findParticipant(tx, roomID, actor.UserID)
		if err != nil {
			return s.storageFailure(opJoinRoom, roomID, err)
		}
		if member == nil {
			if !room.IsPublic {
				return apperr.New(opJoinRoom, "private_room", apperr.Wrap(apperr.ErrPermissionDenied, "room %s requires a join request", roomID))
			}
			if err := s.addParticipant(tx, room, actor.UserID, actor.DisplayName(), RoleMember); err != nil {
				s.logError(opJoinRoom, "participant_insert_failed", err, zap.String("room_id", roomID))
				return apperr.New(opJoinRoom, "participant_insert_failed", err)
			}
			changed = true
		}
		view, err = s.loadView(tx, roomID)
		if err != nil {
			return s.storageFailure(opJoinRoom, roomID, err)
		}
		return nil
	})
	if txErr != nil {
		return RoomView{}, txErr
	}
	if changed {
		s.publish(ctx, opJoinRoom, realtime.Event{RoomID: roomID, Type: realtime.EventRoomChanged, ActorID: actor.UserID})
	}
	return s.redact(view, actor.UserID), nil
}

// RequestJoin records a pending request for a private room. Duplicate
// requests collapse into one and existing members are returned unchanged.
func (s *Service) RequestJoin(ctx context.Context, actor Actor, rawRoomID string) (RoomView, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return RoomView{}, apperr.New(opRequestJoin, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	if actor.UserID == "" {
		return RoomView{}, apperr.New(opRequestJoin, "missing_user_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", errMissingUserID))
	}
	changed := false
	var view RoomView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := LockRoom(tx, roomID)
		if err != nil {
			return s.storageFailure(opRequestJoin, roomID, err)
		}
		member, err := findParticipant(tx, roomID, actor.UserID)
		if err != nil {
			return s.storageFailure(opRequestJoin, roomID, err)
		}
		if member == nil {
			request := JoinRequest{
				RoomID:             room.RoomID,
				UserID:             actor.UserID,
				UserName:           actor.DisplayName(),
				RequestedAtSeconds: s.clock().UTC().Unix(),
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&request)
			if result.Error != nil {
				s.logError(opRequestJoin, "request_insert_failed", result.Error, zap.String("room_id", roomID))
				return apperr.New(opRequestJoin, "request_insert_failed", result.Error)
			}
			changed = result.RowsAffected > 0
		}
		view, err = s.loadView(tx, roomID)
		if err != nil {
			return s.storageFailure(opRequestJoin, roomID, err)
		}
		return nil
	})
	if txErr != nil {
		return RoomView{}, txErr
	}
	if changed {
		s.publish(ctx, opRequestJoin, realtime.Event{RoomID: roomID, Type: realtime.EventRoomChanged, ActorID: actor.UserID})
	}
	return s.redact(view, actor.UserID), nil
}

// ApproveJoinRequest moves a pending requester into the participant list.
func (s *Service) ApproveJoinRequest(ctx context.Context, actor Actor, rawRoomID, userID string) (RoomView, error) {
	return s.resolveJoinRequest(ctx, opApproveJoin, actor, rawRoomID, userID, true)
}

// RejectJoinRequest drops a pending request.
func (s *Service) RejectJoinRequest(ctx context.Context, actor Actor, rawRoomID, userID string) (RoomView, error) {
	return s.resolveJoinRequest(ctx, opRejectJoin, actor, rawRoomID, userID, false)
}

func (s *Service) resolveJoinRequest(ctx context.Context, operation string, actor Actor, rawRoomID, userID string, approve bool) (RoomView, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return RoomView{}, apperr.New(operation, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	var view RoomView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := LockRoom(tx, roomID)
		if err != nil {
			return s.storageFailure(operation, roomID, err)
		}
		if err := requireAdmin(tx, operation, roomID, actor.UserID); err != nil {
			return err
		}
		var request JoinRequest
		err = tx.Where("room_id = ? AND user_id = ?", roomID, userID).Take(&request).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(operation, "request_not_found", apperr.Wrap(apperr.ErrNotFound, "no join request from %s", userID))
		}
		if err != nil {
			return s.storageFailure(operation, roomID, err)
		}
		if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&JoinRequest{}).Error; err != nil {
			s.logError(operation, "request_delete_failed", err, zap.String("room_id", roomID))
			return apperr.New(operation, "request_delete_failed", err)
		}
		if approve {
			existing, err := findParticipant(tx, roomID, userID)
			if err != nil {
				return s.storageFailure(operation, roomID, err)
			}
			if existing == nil {
				if err := s.addParticipant(tx, room, request.UserID, request.UserName, RoleMember); err != nil {
					s.logError(operation, "participant_insert_failed", err, zap.String("room_id", roomID))
					return apperr.New(operation, "participant_insert_failed", err)
				}
			}
		}
		view, err = s.loadView(tx, roomID)
		if err != nil {
			return s.storageFailure(operation, roomID, err)
		}
		return nil
	})
	if txErr != nil {
		return RoomView{}, txErr
	}
	s.publish(ctx, operation, realtime.Event{RoomID: roomID, Type: realtime.EventRoomChanged, EntityIDs: []string{userID}, ActorID: actor.UserID})
	return view, nil
}

// UpdateParticipantRole changes a member's role. The creator always stays admin.
func (s *Service) UpdateParticipantRole(ctx context.Context, actor Actor, rawRoomID, userID string, role Role) (RoomView, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return RoomView{}, apperr.New(opUpdateRole, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	if _, err := ParseRole(string(role)); err != nil {
		return RoomView{}, apperr.New(opUpdateRole, "invalid_role", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	var view RoomView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := LockRoom(tx, roomID)
		if err != nil {
			return s.storageFailure(opUpdateRole, roomID, err)
		}
		if err := requireAdmin(tx, opUpdateRole, roomID, actor.UserID); err != nil {
			return err
		}
		if userID == room.CreatedBy && role != RoleAdmin {
			return apperr.New(opUpdateRole, "creator_demotion", apperr.Wrap(apperr.ErrPermissionDenied, "%v", ErrCreatorMustStayAdmin))
		}
		result := tx.Model(&Participant{}).
			Where("room_id = ? AND user_id = ?", roomID, userID).
			Update("role", role)
		if result.Error != nil {
			s.logError(opUpdateRole, "participant_update_failed", result.Error, zap.String("room_id", roomID))
			return apperr.New(opUpdateRole, "participant_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opUpdateRole, "participant_not_found", apperr.Wrap(apperr.ErrNotFound, "%s is not a participant", userID))
		}
		view, err = s.loadView(tx, roomID)
		if err != nil {
			return s.storageFailure(opUpdateRole, roomID, err)
		}
		return nil
	})
	if txErr != nil {
		return RoomView{}, txErr
	}
	s.publish(ctx, opUpdateRole, realtime.Event{RoomID: roomID, Type: realtime.EventRoomChanged, EntityIDs: []string{userID}, ActorID: actor.UserID})
	return view, nil
}

// LeaveRoom removes the actor from the room. The creator cannot leave.
func (s *Service) LeaveRoom(ctx context.Context, actor Actor, rawRoomID string) error {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return apperr.New(opLeaveRoom, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := LockRoom(tx, roomID)
		if err != nil {
			return s.storageFailure(opLeaveRoom, roomID, err)
		}
		if room.CreatedBy == actor.UserID {
			return apperr.New(opLeaveRoom, "creator_cannot_leave", apperr.Wrap(apperr.ErrPermissionDenied, "%v", ErrCreatorMustStayAdmin))
		}
		result := tx.Where("room_id = ? AND user_id = ?", roomID, actor.UserID).Delete(&Participant{})
		if result.Error != nil {
			s.logError(opLeaveRoom, "participant_delete_failed", result.Error, zap.String("room_id", roomID))
			return apperr.New(opLeaveRoom, "participant_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.New(opLeaveRoom, "not_a_participant", apperr.Wrap(apperr.ErrNotFound, "%s is not a participant", actor.UserID))
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	s.publish(ctx, opLeaveRoom, realtime.Event{RoomID: roomID, Type: realtime.EventRoomChanged, EntityIDs: []string{actor.UserID}, ActorID: actor.UserID})
	return nil
}

// UpdateRoom changes the name or visibility of a room.
func (s *Service) UpdateRoom(ctx context.Context, actor Actor, rawRoomID string, update RoomUpdate) (RoomView, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return RoomView{}, apperr.New(opUpdateRoom, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	changes := map[string]any{}
	if update.Name != nil {
		name, err := normalizeRoomName(*update.Name)
		if err != nil {
			return RoomView{}, apperr.New(opUpdateRoom, "invalid_name", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
		}
		changes["name"] = name
	}
	if update.IsPublic != nil {
		changes["is_public"] = *update.IsPublic
	}
	var view RoomView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := LockRoom(tx, roomID); err != nil {
			return s.storageFailure(opUpdateRoom, roomID, err)
		}
		if err := requireAdmin(tx, opUpdateRoom, roomID, actor.UserID); err != nil {
			return err
		}
		if len(changes) > 0 {
			changes["updated_at_s"] = s.clock().UTC().Unix()
			if err := tx.Model(&Room{}).Where("room_id = ?", roomID).Updates(changes).Error; err != nil {
				s.logError(opUpdateRoom, "room_update_failed", err, zap.String("room_id", roomID))
				return apperr.New(opUpdateRoom, "room_update_failed", err)
			}
		}
		var err error
		view, err = s.loadView(tx, roomID)
		if err != nil {
			return s.storageFailure(opUpdateRoom, roomID, err)
		}
		return nil
	})
	if txErr != nil {
		return RoomView{}, txErr
	}
	if len(changes) > 0 {
		s.publish(ctx, opUpdateRoom, realtime.Event{RoomID: roomID, Type: realtime.EventRoomChanged, ActorID: actor.UserID})
	}
	return view, nil
}

// DeleteRoom removes the room and, through the registered cascades, every
// entity that references it.
func (s *Service) DeleteRoom(ctx context.Context, actor Actor, rawRoomID string) error {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return apperr.New(opDeleteRoom, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := LockRoom(tx, roomID); err != nil {
			return s.storageFailure(opDeleteRoom, roomID, err)
		}
		if err := requireAdmin(tx, opDeleteRoom, roomID, actor.UserID); err != nil {
			return err
		}
		for _, cascade := range s.cascade {
			if err := cascade(tx, roomID); err != nil {
				s.logError(opDeleteRoom, "cascade_failed", err, zap.String("room_id", roomID))
				return apperr.New(opDeleteRoom, "cascade_failed", err)
			}
		}
		for _, model := range []any{&JoinRequest{}, &Participant{}, &Room{}} {
			if err := tx.Where("room_id = ?", roomID).Delete(model).Error; err != nil {
				s.logError(opDeleteRoom, "room_delete_failed", err, zap.String("room_id", roomID))
				return apperr.New(opDeleteRoom, "room_delete_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	s.publish(ctx, opDeleteRoom, realtime.Event{RoomID: roomID, Type: realtime.EventRoomDeleted, ActorID: actor.UserID})
	return nil
}

// Membership resolves the caller's standing in a room. Non-members receive
// ErrPermissionDenied; unknown rooms ErrNotFound.
func (s *Service) Membership(ctx context.Context, rawRoomID, userID string) (Membership, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return Membership{}, apperr.New(opMembership, "invalid_room_id", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	db := s.db.WithContext(ctx)
	var room Room
	if err := db.Where("room_id = ?", roomID).Take(&room).Error; err != nil {
		return Membership{}, s.storageFailure(opMembership, roomID, err)
	}
	participant, err := findParticipant(db, roomID, userID)
	if err != nil {
		return Membership{}, s.storageFailure(opMembership, roomID, err)
	}
	if participant == nil {
		return Membership{}, apperr.New(opMembership, "not_a_participant", apperr.Wrap(apperr.ErrPermissionDenied, "%s is not a participant of %s", userID, roomID))
	}
	return Membership{
		RoomID:    roomID,
		UserID:    participant.UserID,
		Name:      participant.Name,
		Role:      participant.Role,
		CreatedBy: room.CreatedBy,
	}, nil
}

func (s *Service) allocateRoomID(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		candidate, err := s.idProvider.NewID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&Room{}).Where("room_id = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", errRoomCodeExhausted
}

func (s *Service) addParticipant(tx *gorm.DB, room Room, userID, name string, role Role) error {
	if name == "" {
		name = "Anonymous"
	}
	participant := Participant{
		RoomID:          room.RoomID,
		UserID:          userID,
		Name:            name,
		Role:            role,
		JoinedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := tx.Create(&participant).Error; err != nil {
		return err
	}
	return tx.Where("room_id = ? AND user_id = ?", room.RoomID, userID).Delete(&JoinRequest{}).Error
}

func (s *Service) loadView(db *gorm.DB, roomID string) (RoomView, error) {
	var room Room
	if err := db.Where("room_id = ?", roomID).Take(&room).Error; err != nil {
		return RoomView{}, err
	}
	views, err := s.attach(db, []Room{room}, func(Room) bool { return true }, "")
	if err != nil {
		return RoomView{}, err
	}
	return views[0], nil
}

// attach loads participants for rooms and, where includeRequests allows, the
// join requests visible to viewerID ("" means unrestricted).
func (s *Service) attach(db *gorm.DB, rooms []Room, includeRequests func(Room) bool, viewerID string) ([]RoomView, error) {
	views := make([]RoomView, 0, len(rooms))
	if len(rooms) == 0 {
		return views, nil
	}
	ids := make([]string, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.RoomID)
	}
	var participants []Participant
	if err := db.Where("room_id IN ?", ids).Order("joined_at_s ASC, user_id ASC").Find(&participants).Error; err != nil {
		return nil, err
	}
	var requests []JoinRequest
	if err := db.Where("room_id IN ?", ids).Order("requested_at_s ASC, user_id ASC").Find(&requests).Error; err != nil {
		return nil, err
	}
	participantsByRoom := make(map[string][]Participant, len(rooms))
	for _, participant := range participants {
		participantsByRoom[participant.RoomID] = append(participantsByRoom[participant.RoomID], participant)
	}
	requestsByRoom := make(map[string][]JoinRequest, len(rooms))
	for _, request := range requests {
		requestsByRoom[request.RoomID] = append(requestsByRoom[request.RoomID], request)
	}
	for _, room := range rooms {
		view := RoomView{
			Room:         room,
			Participants: append([]Participant{}, participantsByRoom[room.RoomID]...),
			JoinRequests: []JoinRequest{},
		}
		if includeRequests(room) {
			view.JoinRequests = append(view.JoinRequests, requestsByRoom[room.RoomID]...)
		}
		if viewerID != "" {
			view = s.redact(view, viewerID)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) redact(view RoomView, viewerID string) RoomView {
	if participant, ok := view.Participant(viewerID); ok && participant.Role == RoleAdmin {
		return view
	}
	view.JoinRequests = []JoinRequest{}
	return view
}

func (s *Service) storageFailure(operation, roomID string, err error) error {
	var serviceErr *apperr.ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(operation, "room_not_found", apperr.Wrap(apperr.ErrNotFound, "room %s", roomID))
	}
	s.logError(operation, "query_failed", err, zap.String("room_id", roomID))
	return apperr.New(operation, "query_failed", err)
}

func (s *Service) publish(ctx context.Context, operation string, event realtime.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logError(operation, "publish_failed", err, zap.String("room_id", event.RoomID))
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
	s.logger.Error("rooms service error", attrs...)
}

// LockRoom takes a row lock on the room for the rest of tx, serializing
// writers that order rows within one room.
func LockRoom(tx *gorm.DB, roomID string) (Room, error) {
	var room Room
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ?", roomID).
		Take(&room).Error
	return room, err
}

func findParticipant(db *gorm.DB, roomID, userID string) (*Participant, error) {
	if userID == "" {
		return nil, nil
	}
	var participant Participant
	err := db.Where("room_id = ? AND user_id = ?", roomID, userID).Take(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func requireAdmin(tx *gorm.DB, operation, roomID, userID string) error {
	participant, err := findParticipant(tx, roomID, userID)
	if err != nil {
		return apperr.New(operation, "query_failed", err)
	}
	if participant == nil || participant.Role != RoleAdmin {
		return apperr.New(operation, "permission_denied", apperr.Wrap(apperr.ErrPermissionDenied, "admin role required in %s", roomID))
	}
	return nil
}
