package reconcile

import (
	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/goals"
)

const keySeparator = "\x00"

// MessageEntity matches chat messages by author and text.
type MessageEntity struct {
	chat.Message
}

func (m MessageEntity) ServerID() string  { return m.MessageID }
func (m MessageEntity) MatchKey() string  { return m.UserID + keySeparator + m.Text }
func (m MessageEntity) ServerTime() int64 { return m.TimestampMillis }

// Messages wraps a history page.
func Messages(messages []chat.Message) []MessageEntity {
	out := make([]MessageEntity, 0, len(messages))
	for _, message := range messages {
		out = append(out, MessageEntity{Message: message})
	}
	return out
}

// CardEntity is a flashcard at a position inside its deck or note. Cards
// have no identity of their own, so they match by question and answer.
type CardEntity struct {
	Card     flashcards.Card
	Position int
}

func (c CardEntity) ServerID() string  { return "" }
func (c CardEntity) MatchKey() string  { return c.Card.Question + keySeparator + c.Card.Answer }
func (c CardEntity) ServerTime() int64 { return int64(c.Position) }

// Cards wraps a flashcard array in positional order.
func Cards(cards []flashcards.Card) []CardEntity {
	out := make([]CardEntity, 0, len(cards))
	for index, card := range cards {
		out = append(out, CardEntity{Card: card, Position: index})
	}
	return out
}

// GoalEntity matches goals by name and assignee.
type GoalEntity struct {
	goals.Goal
}

func (g GoalEntity) ServerID() string  { return g.GoalID }
func (g GoalEntity) MatchKey() string  { return g.GoalName + keySeparator + g.AssignedTo }
func (g GoalEntity) ServerTime() int64 { return g.CreatedAtSeconds }

// Goals wraps a goal list.
func Goals(list []goals.Goal) []GoalEntity {
	out := make([]GoalEntity, 0, len(list))
	for _, goal := range list {
		out = append(out, GoalEntity{Goal: goal})
	}
	return out
}
