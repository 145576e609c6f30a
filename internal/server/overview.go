package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
)

const overviewMessageLimit = 50

type overviewPayload struct {
	Room     roomPayload      `json:"room"`
	Notes    []notePayload    `json:"notes"`
	Decks    []deckPayload    `json:"decks"`
	Messages []messagePayload `json:"messages"`
	Goals    []goalPayload    `json:"goals"`
}

// handleRoomOverview loads everything a room page renders in one round trip.
func (h *httpHandler) handleRoomOverview(c *gin.Context) {
	actor := actorFrom(c)
	roomID := c.Param("roomID")
	group, ctx := errgroup.WithContext(c.Request.Context())

	var (
		view        rooms.RoomView
		noteList    []notes.Note
		deckList    []decks.Deck
		messageList []chat.Message
		goalList    []goals.Goal
	)
	group.Go(func() (err error) {
		view, err = h.rooms.GetRoom(ctx, actor, roomID)
		return err
	})
	group.Go(func() (err error) {
		noteList, err = h.notes.ListNotes(ctx, actor, roomID)
		return err
	})
	group.Go(func() (err error) {
		deckList, err = h.decks.ListDecks(ctx, actor, roomID)
		return err
	})
	group.Go(func() (err error) {
		messageList, err = h.chat.ListMessages(ctx, actor, roomID, overviewMessageLimit)
		return err
	})
	group.Go(func() (err error) {
		goalList, err = h.goals.ListGoals(ctx, actor, roomID)
		return err
	})
	if err := group.Wait(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overviewPayload{
		Room:     newRoomPayload(view),
		Notes:    newNotePayloads(noteList),
		Decks:    newDeckPayloads(deckList),
		Messages: newMessagePayloads(messageList),
		Goals:    newGoalPayloads(goalList),
	})
}
