package users

import (
	"strings"
	"time"
)

const maxDisplayNameLength = 120

// Profile is the canonical user record behind every session.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	AvatarURL   string    `gorm:"column:user_avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "users"
}

// Name returns the display name, falling back to the email local part.
func (p Profile) Name() string {
	if name := normalize(p.DisplayName); name != "" {
		return name
	}
	if local, _, found := strings.Cut(normalize(p.Email), "@"); found && local != "" {
		return local
	}
	return "Anonymous"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
