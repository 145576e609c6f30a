package chat

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxTextLength  = 4000
	defaultHistory = 200
	maxHistory     = 1000
)

// ErrInvalidText indicates that a chat message is empty or too long.
var ErrInvalidText = errors.New("chat: invalid message text")

// Message is an append-only chat entry. TimestampMillis is assigned by the
// server and strictly increases within a room.
type Message struct {
	MessageID       string `gorm:"column:message_id;primaryKey;size:190;not null"`
	RoomID          string `gorm:"column:room_id;size:32;not null;index:idx_messages_room_time,priority:1"`
	UserID          string `gorm:"column:user_id;size:190;not null"`
	UserName        string `gorm:"column:user_name;size:190;not null;default:''"`
	Text            string `gorm:"column:text;type:text;not null"`
	TimestampMillis int64  `gorm:"column:timestamp_ms;not null;index:idx_messages_room_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "messages"
}

func normalizeText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidText)
	}
	if len([]rune(text)) > maxTextLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidText, maxTextLength)
	}
	return text, nil
}

// nextTimestamp keeps per-room ordering total even when the wall clock stalls
// or steps backwards.
func nextTimestamp(nowMillis, lastMillis int64) int64 {
	if nowMillis > lastMillis {
		return nowMillis
	}
	return lastMillis + 1
}
