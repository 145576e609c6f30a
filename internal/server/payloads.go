package server

import (
	"time"

	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
	"github.com/Iam-samyog/EduCircle/internal/users"
)

type profilePayload struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type participantPayload struct {
	UserID   string     `json:"userId"`
	Name     string     `json:"name"`
	Role     rooms.Role `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

type joinRequestPayload struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	RequestedAt time.Time `json:"requestedAt"`
}

type roomPayload struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	CreatedBy          string               `json:"createdBy"`
	CreatedByName      string               `json:"createdByName"`
	IsPublic           bool                 `json:"isPublic"`
	Participants       []string             `json:"participants"`
	ParticipantDetails []participantPayload `json:"participantDetails"`
	JoinRequests       []joinRequestPayload `json:"joinRequests"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

type notePayload struct {
	ID             string            `json:"id"`
	RoomID         string            `json:"roomId"`
	UploadedBy     string            `json:"uploadedBy"`
	UploadedByName string            `json:"uploadedByName"`
	FileName       string            `json:"fileName"`
	Content        string            `json:"content"`
	Summary        string            `json:"summary"`
	KeyPoints      []string          `json:"keyPoints"`
	Flashcards     []flashcards.Card `json:"flashcards"`
	Version        int64             `json:"version"`
	UploadedAt     time.Time         `json:"uploadedAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type deckPayload struct {
	ID            string            `json:"id"`
	RoomID        string            `json:"roomId"`
	CreatedBy     string            `json:"createdBy"`
	CreatedByName string            `json:"createdByName"`
	Title         string            `json:"title"`
	SourceNoteID  string            `json:"sourceNoteId,omitempty"`
	Flashcards    []flashcards.Card `json:"flashcards"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// messagePayload carries the server timestamp in Unix milliseconds.
type messagePayload struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type goalPayload struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"roomId"`
	GoalName       string    `json:"goalName"`
	AssignedTo     string    `json:"assignedTo"`
	AssignedToName string    `json:"assignedToName"`
	CreatedBy      string    `json:"createdBy"`
	Progress       int       `json:"progress"`
	Completed      bool      `json:"completed"`
	Deadline       time.Time `json:"deadline"`
	CreatedAt      time.Time `json:"createdAt"`
}

func unixTime(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func newProfilePayload(profile users.Profile) profilePayload {
	return profilePayload{
		UserID:      profile.UserID,
		Email:       profile.Email,
		DisplayName: profile.Name(),
		AvatarURL:   profile.AvatarURL,
	}
}

func newRoomPayload(view rooms.RoomView) roomPayload {
	payload := roomPayload{
		ID:                 view.Room.RoomID,
		Name:               view.Room.Name,
		CreatedBy:          view.Room.CreatedBy,
		CreatedByName:      view.Room.CreatedByName,
		IsPublic:           view.Room.IsPublic,
		Participants:       view.ParticipantIDs(),
		ParticipantDetails: make([]participantPayload, 0, len(view.Participants)),
		JoinRequests:       make([]joinRequestPayload, 0, len(view.JoinRequests)),
		CreatedAt:          unixTime(view.Room.CreatedAtSeconds),
		UpdatedAt:          unixTime(view.Room.UpdatedAtSeconds),
	}
	for _, participant := range view.Participants {
		payload.ParticipantDetails = append(payload.ParticipantDetails, participantPayload{
			UserID:   participant.UserID,
			Name:     participant.Name,
			Role:     participant.Role,
			JoinedAt: unixTime(participant.JoinedAtSeconds),
		})
	}
	for _, request := range view.JoinRequests {
		payload.JoinRequests = append(payload.JoinRequests, joinRequestPayload{
			UserID:      request.UserID,
			Name:        request.UserName,
			RequestedAt: unixTime(request.RequestedAtSeconds),
		})
	}
	return payload
}

func newRoomPayloads(views []rooms.RoomView) []roomPayload {
	out := make([]roomPayload, 0, len(views))
	for _, view := range views {
		out = append(out, newRoomPayload(view))
	}
	return out
}

func newNotePayload(note notes.Note) notePayload {
	keyPoints := make([]string, len(note.KeyPoints))
	copy(keyPoints, note.KeyPoints)
	return notePayload{
		ID:             note.NoteID,
		RoomID:         note.RoomID,
		UploadedBy:     note.UploadedBy,
		UploadedByName: note.UploadedByName,
		FileName:       note.FileName,
		Content:        note.Content,
		Summary:        note.Summary,
		KeyPoints:      keyPoints,
		Flashcards:     note.Cards(),
		Version:        note.Version,
		UploadedAt:     unixTime(note.UploadedAtSeconds),
		UpdatedAt:      unixTime(note.UpdatedAtSeconds),
	}
}

func newNotePayloads(list []notes.Note) []notePayload {
	out := make([]notePayload, 0, len(list))
	for _, note := range list {
		out = append(out, newNotePayload(note))
	}
	return out
}

func newDeckPayload(deck decks.Deck) deckPayload {
	return deckPayload{
		ID:            deck.DeckID,
		RoomID:        deck.RoomID,
		CreatedBy:     deck.CreatedBy,
		CreatedByName: deck.CreatedByName,
		Title:         deck.Title,
		SourceNoteID:  deck.SourceNoteID,
		Flashcards:    flashcards.Clone(deck.Flashcards),
		Version:       deck.Version,
		CreatedAt:     unixTime(deck.CreatedAtSeconds),
		UpdatedAt:     unixTime(deck.UpdatedAtSeconds),
	}
}

func newDeckPayloads(list []decks.Deck) []deckPayload {
	out := make([]deckPayload, 0, len(list))
	for _, deck := range list {
		out = append(out, newDeckPayload(deck))
	}
	return out
}

func newMessagePayload(message chat.Message) messagePayload {
	return messagePayload{
		ID:        message.MessageID,
		RoomID:    message.RoomID,
		UserID:    message.UserID,
		UserName:  message.UserName,
		Text:      message.Text,
		Timestamp: message.TimestampMillis,
	}
}

func newMessagePayloads(list []chat.Message) []messagePayload {
	out := make([]messagePayload, 0, len(list))
	for _, message := range list {
		out = append(out, newMessagePayload(message))
	}
	return out
}

func newGoalPayload(goal goals.Goal) goalPayload {
	return goalPayload{
		ID:             goal.GoalID,
		RoomID:         goal.RoomID,
		GoalName:       goal.GoalName,
		AssignedTo:     goal.AssignedTo,
		AssignedToName: goal.AssignedToName,
		CreatedBy:      goal.CreatedBy,
		Progress:       goal.Progress,
		Completed:      goal.Completed(),
		Deadline:       goal.Deadline(),
		CreatedAt:      unixTime(goal.CreatedAtSeconds),
	}
}

func newGoalPayloads(list []goals.Goal) []goalPayload {
	out := make([]goalPayload, 0, len(list))
	for _, goal := range list {
		out = append(out, newGoalPayload(goal))
	}
	return out
}
