package rooms

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a participant's permission level inside a room.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const (
	maxIdentifierLength = 190
	maxRoomNameLength   = 120
	defaultPublicLimit  = 50
)

var (
	// ErrInvalidRoomID indicates that a room identifier is empty or exceeds storage bounds.
	ErrInvalidRoomID = errors.New("rooms: invalid room id")
	// ErrInvalidRoomName indicates that a room name is empty or too long.
	ErrInvalidRoomName = errors.New("rooms: invalid room name")
	// ErrInvalidRole indicates an unknown participant role.
	ErrInvalidRole = errors.New("rooms: invalid role")
	// ErrCreatorMustStayAdmin guards the creator's admin membership.
	ErrCreatorMustStayAdmin = errors.New("rooms: room creator must remain an admin member")
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID string
	Name   string
}

// DisplayName falls back to "Anonymous" when the profile has no name.
func (a Actor) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return "Anonymous"
}

// Room is the persisted room record.
type Room struct {
	RoomID           string `gorm:"column:room_id;primaryKey;size:32;not null"`
	Name             string `gorm:"column:name;size:190;not null"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null;index"`
	CreatedByName    string `gorm:"column:created_by_name;size:190;not null;default:''"`
	IsPublic         bool   `gorm:"column:is_public;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Room) TableName() string {
	return "rooms"
}

// Participant is one membership row; participants and their details share
// one record so they cannot drift apart.
type Participant struct {
	RoomID          string `gorm:"column:room_id;primaryKey;size:32;not null"`
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	Name            string `gorm:"column:name;size:190;not null;default:''"`
	Role            Role   `gorm:"column:role;size:16;not null;default:'member'"`
	JoinedAtSeconds int64  `gorm:"column:joined_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Participant) TableName() string {
	return "room_participants"
}

// JoinRequest is a pending request to enter a private room.
type JoinRequest struct {
	RoomID             string `gorm:"column:room_id;primaryKey;size:32;not null"`
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null"`
	UserName           string `gorm:"column:user_name;size:190;not null;default:''"`
	RequestedAtSeconds int64  `gorm:"column:requested_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (JoinRequest) TableName() string {
	return "room_join_requests"
}

// RoomView aggregates a room with its participants and join requests.
type RoomView struct {
	Room         Room
	Participants []Participant
	JoinRequests []JoinRequest
}

// ParticipantIDs lists member ids in join order.
func (v RoomView) ParticipantIDs() []string {
	ids := make([]string, 0, len(v.Participants))
	for _, participant := range v.Participants {
		ids = append(ids, participant.UserID)
	}
	return ids
}

// Participant returns the membership record for userID.
func (v RoomView) Participant(userID string) (Participant, bool) {
	for _, participant := range v.Participants {
		if participant.UserID == userID {
			return participant, true
		}
	}
	return Participant{}, false
}

// Membership is the caller's standing inside a room.
type Membership struct {
	RoomID    string
	UserID    string
	Name      string
	Role      Role
	CreatedBy string
}

// IsAdmin reports whether the member holds the admin role.
func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// CanModify reports whether the member may mutate an entity owned by ownerID.
func (m Membership) CanModify(ownerID string) bool {
	return m.IsAdmin() || (ownerID != "" && m.UserID == ownerID)
}

// RoomUpdate carries optional room attribute changes.
type RoomUpdate struct {
	Name     *string
	IsPublic *bool
}

func normalizeRoomName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomName)
	}
	if len([]rune(name)) > maxRoomNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRoomName, maxRoomNameLength)
	}
	return name, nil
}

func normalizeRoomID(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomID)
	}
	if len(id) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRoomID, maxIdentifierLength)
	}
	return id, nil
}
