package goals

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
	opServiceNew   = "goals.service.new"
	opCreateGoal   = "goals.create_goal"
	opListGoals    = "goals.list_goals"
	opSetProgress  = "goals.set_progress"
	opDeleteGoal   = "goals.delete_goal"
	opDeleteByRoom = "goals.delete_by_room"
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

// Service tracks room study goals.
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

// CreateGoal assigns a new goal to a participant of roomID.
func (s *Service) CreateGoal(ctx context.Context, actor rooms.Actor, roomID string, input GoalInput) (Goal, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return Goal{}, err
	}
	normalized, err := input.normalized()
	if err != nil {
		return Goal{}, apperr.New(opCreateGoal, "invalid_input", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	assignee, err := s.members.Membership(ctx, membership.RoomID, normalized.AssignedTo)
	if err != nil {
		if errors.Is(err, apperr.ErrPermissionDenied) {
			return Goal{}, apperr.New(opCreateGoal, "assignee_not_participant",
				apperr.Wrap(apperr.ErrInvalidInput, "%s is not a participant", normalized.AssignedTo))
		}
		return Goal{}, err
	}
	goalID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateGoal, "id_generation_failed", err, zap.String("room_id", membership.RoomID))
		return Goal{}, apperr.New(opCreateGoal, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	goal := Goal{
		GoalID:           goalID,
		RoomID:           membership.RoomID,
		GoalName:         normalized.GoalName,
		AssignedTo:       assignee.UserID,
		AssignedToName:   assignee.Name,
		CreatedBy:        actor.UserID,
		Progress:         0,
		DeadlineSeconds:  normalized.Deadline.UTC().Unix(),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&goal).Error; err != nil {
		s.logError(opCreateGoal, "goal_insert_failed", err, zap.String("room_id", membership.RoomID))
		return Goal{}, apperr.New(opCreateGoal, "goal_insert_failed", err)
	}
	s.publish(ctx, opCreateGoal, goal, actor.UserID)
	return goal, nil
}

// ListGoals returns a room's goals ordered by deadline.
func (s *Service) ListGoals(ctx context.Context, actor rooms.Actor, roomID string) ([]Goal, error) {
	membership, err := s.members.Membership(ctx, roomID, actor.UserID)
	if err != nil {
		return nil, err
	}
	var goals []Goal
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", membership.RoomID).
		Order("deadline_s ASC, created_at_s ASC, goal_id ASC").
		Find(&goals).Error; err != nil {
		s.logError(opListGoals, "query_failed", err, zap.String("room_id", membership.RoomID))
		return nil, apperr.New(opListGoals, "query_failed", err)
	}
	return goals, nil
}

// SetProgress records progress in percent. Assignee or room admin only.
func (s *Service) SetProgress(ctx context.Context, actor rooms.Actor, goalID string, progress int) (Goal, error) {
	if err := validateProgress(progress); err != nil {
		return Goal{}, apperr.New(opSetProgress, "invalid_progress", apperr.Wrap(apperr.ErrInvalidInput, "%v", err))
	}
	goal, err := s.loadAuthorized(ctx, opSetProgress, actor, goalID)
	if err != nil {
		return Goal{}, err
	}
	goal.Progress = progress
	goal.UpdatedAtSeconds = s.clock().UTC().Unix()
	result := s.db.WithContext(ctx).Model(&Goal{}).Where("goal_id = ?", goal.GoalID).Updates(map[string]any{
		"progress":     goal.Progress,
		"updated_at_s": goal.UpdatedAtSeconds,
	})
	if result.Error != nil {
		s.logError(opSetProgress, "goal_update_failed", result.Error, zap.String("goal_id", goal.GoalID))
		return Goal{}, apperr.New(opSetProgress, "goal_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Goal{}, apperr.New(opSetProgress, "goal_not_found", apperr.Wrap(apperr.ErrNotFound, "goal %s", goal.GoalID))
	}
	s.publish(ctx, opSetProgress, goal, actor.UserID)
	return goal, nil
}

// MarkComplete sets progress to 100.
func (s *Service) MarkComplete(ctx context.Context, actor rooms.Actor, goalID string) (Goal, error) {
	return s.SetProgress(ctx, actor, goalID, ProgressComplete)
}

// DeleteGoal removes a goal. Assignee or room admin only.
func (s *Service) DeleteGoal(ctx context.Context, actor rooms.Actor, goalID string) error {
	goal, err := s.loadAuthorized(ctx, opDeleteGoal, actor, goalID)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("goal_id = ?", goal.GoalID).Delete(&Goal{})
	if result.Error != nil {
		s.logError(opDeleteGoal, "goal_delete_failed", result.Error, zap.String("goal_id", goal.GoalID))
		return apperr.New(opDeleteGoal, "goal_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(opDeleteGoal, "goal_not_found", apperr.Wrap(apperr.ErrNotFound, "goal %s", goal.GoalID))
	}
	s.publish(ctx, opDeleteGoal, goal, actor.UserID)
	return nil
}

// DeleteByRoom removes a room's goals inside the caller's transaction.
func (s *Service) DeleteByRoom(tx *gorm.DB, roomID string) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&Goal{}).Error; err != nil {
		s.logError(opDeleteByRoom, "goals_delete_failed", err, zap.String("room_id", roomID))
		return err
	}
	return nil
}

func (s *Service) loadAuthorized(ctx context.Context, operation string, actor rooms.Actor, goalID string) (Goal, error) {
	if goalID == "" {
		return Goal{}, apperr.New(operation, "invalid_goal_id", apperr.Wrap(apperr.ErrInvalidInput, "empty goal id"))
	}
	var goal Goal
	err := s.db.WithContext(ctx).Where("goal_id = ?", goalID).Take(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Goal{}, apperr.New(operation, "goal_not_found", apperr.Wrap(apperr.ErrNotFound, "goal %s", goalID))
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("goal_id", goalID))
		return Goal{}, apperr.New(operation, "query_failed", err)
	}
	membership, err := s.members.Membership(ctx, goal.RoomID, actor.UserID)
	if err != nil {
		return Goal{}, err
	}
	if !membership.CanModify(goal.AssignedTo) {
		return Goal{}, apperr.New(operation, "permission_denied",
			apperr.Wrap(apperr.ErrPermissionDenied, "only the assignee or a room admin can change goal %s", goalID))
	}
	return goal, nil
}

func (s *Service) publish(ctx context.Context, operation string, goal Goal, actorID string) {
	event := realtime.Event{RoomID: goal.RoomID, Type: realtime.EventGoalChanged, EntityIDs: []string{goal.GoalID}, ActorID: actorID}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logError(operation, "publish_failed", err, zap.String("room_id", goal.RoomID))
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
	s.logger.Error("goals service error", attrs...)
}
