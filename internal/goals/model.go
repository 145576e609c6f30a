package goals

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxGoalNameLength = 200
	ProgressComplete  = 100
)

var (
	// ErrInvalidGoal indicates missing or malformed goal fields.
	ErrInvalidGoal = errors.New("goals: invalid goal")
	// ErrInvalidProgress indicates a progress value outside 0..100.
	ErrInvalidProgress = errors.New("goals: progress must be between 0 and 100")
)

// Goal is a shared study goal assigned to one participant.
type Goal struct {
	GoalID           string `gorm:"column:goal_id;primaryKey;size:190;not null"`
	RoomID           string `gorm:"column:room_id;size:32;not null;index:idx_goals_room_deadline,priority:1"`
	GoalName         string `gorm:"column:goal_name;size:255;not null"`
	AssignedTo       string `gorm:"column:assigned_to;size:190;not null"`
	AssignedToName   string `gorm:"column:assigned_to_name;size:190;not null;default:''"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null;default:''"`
	Progress         int    `gorm:"column:progress;not null;default:0"`
	DeadlineSeconds  int64  `gorm:"column:deadline_s;not null;index:idx_goals_room_deadline,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Goal) TableName() string {
	return "goals"
}

// Completed reports whether the goal reached 100%.
func (g Goal) Completed() bool {
	return g.Progress >= ProgressComplete
}

// Deadline returns the deadline as a UTC time.
func (g Goal) Deadline() time.Time {
	return time.Unix(g.DeadlineSeconds, 0).UTC()
}

// GoalInput carries the fields for a new goal.
type GoalInput struct {
	GoalName   string
	AssignedTo string
	Deadline   time.Time
}

func (in GoalInput) normalized() (GoalInput, error) {
	out := GoalInput{
		GoalName:   strings.TrimSpace(in.GoalName),
		AssignedTo: strings.TrimSpace(in.AssignedTo),
		Deadline:   in.Deadline,
	}
	if out.GoalName == "" {
		return GoalInput{}, fmt.Errorf("%w: empty goal name", ErrInvalidGoal)
	}
	if len([]rune(out.GoalName)) > maxGoalNameLength {
		return GoalInput{}, fmt.Errorf("%w: goal name exceeds %d characters", ErrInvalidGoal, maxGoalNameLength)
	}
	if out.AssignedTo == "" {
		return GoalInput{}, fmt.Errorf("%w: missing assignee", ErrInvalidGoal)
	}
	if out.Deadline.IsZero() {
		return GoalInput{}, fmt.Errorf("%w: missing deadline", ErrInvalidGoal)
	}
	return out, nil
}

func validateProgress(progress int) error {
	if progress < 0 || progress > ProgressComplete {
		return fmt.Errorf("%w: %d", ErrInvalidProgress, progress)
	}
	return nil
}
