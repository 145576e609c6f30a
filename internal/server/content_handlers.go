package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/prompts"
)

type saveNoteRequest struct {
	FileName   string            `json:"fileName"`
	Content    string            `json:"content"`
	Summary    string            `json:"summary"`
	KeyPoints  []string          `json:"keyPoints"`
	Flashcards []flashcards.Card `json:"flashcards"`
}

type updateNoteRequest struct {
	Content string `json:"content"`
}

type replaceFlashcardsRequest struct {
	Flashcards      []flashcards.Card `json:"flashcards"`
	ExpectedVersion *int64            `json:"expectedVersion"`
}

type createDeckRequest struct {
	Title      string            `json:"title"`
	Flashcards []flashcards.Card `json:"flashcards"`
}

type renameDeckRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type createGoalRequest struct {
	GoalName   string    `json:"goalName"`
	AssignedTo string    `json:"assignedTo"`
	Deadline   time.Time `json:"deadline"`
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

func (h *httpHandler) registerContentRoutes(group *gin.RouterGroup) {
	group.GET("/rooms/:roomID/notes", h.handleListNotes)
	group.POST("/rooms/:roomID/notes", h.handleSaveNote)
	group.POST("/rooms/:roomID/notes/upload", h.handleUploadNote)
	group.GET("/notes/:noteID", h.handleGetNote)
	group.PATCH("/notes/:noteID", h.handleUpdateNote)
	group.DELETE("/notes/:noteID", h.handleDeleteNote)
	group.PUT("/notes/:noteID/flashcards", h.handleReplaceNoteFlashcards)
	group.POST("/notes/:noteID/flashcards", h.handleAddNoteFlashcard)
	group.PATCH("/notes/:noteID/flashcards/:index", h.handleUpdateNoteFlashcard)
	group.DELETE("/notes/:noteID/flashcards/:index", h.handleDeleteNoteFlashcard)
	group.POST("/notes/:noteID/decks", h.handleExtractDeck)

	group.GET("/rooms/:roomID/decks", h.handleListDecks)
	group.POST("/rooms/:roomID/decks", h.handleCreateDeck)
	group.GET("/decks/:deckID", h.handleGetDeck)
	group.PATCH("/decks/:deckID", h.handleRenameDeck)
	group.DELETE("/decks/:deckID", h.handleDeleteDeck)
	group.PUT("/decks/:deckID/flashcards", h.handleReplaceDeckFlashcards)
	group.POST("/decks/:deckID/flashcards", h.handleAddDeckFlashcard)
	group.PATCH("/decks/:deckID/flashcards/:index", h.handleUpdateDeckFlashcard)
	group.DELETE("/decks/:deckID/flashcards/:index", h.handleDeleteDeckFlashcard)

	group.GET("/rooms/:roomID/messages", h.handleListMessages)
	group.POST("/rooms/:roomID/messages", h.handleSendMessage)

	group.GET("/rooms/:roomID/goals", h.handleListGoals)
	group.POST("/rooms/:roomID/goals", h.handleCreateGoal)
	group.PATCH("/goals/:goalID", h.handleSetGoalProgress)
	group.POST("/goals/:goalID/complete", h.handleCompleteGoal)
	group.DELETE("/goals/:goalID", h.handleDeleteGoal)
}

func cardIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func bindCard(c *gin.Context) (flashcards.Card, bool) {
	var card flashcards.Card
	if err := c.ShouldBindJSON(&card); err != nil {
		return flashcards.Card{}, false
	}
	normalized, err := flashcards.NewCard(card.Question, card.Answer)
	if err != nil {
		return flashcards.Card{}, false
	}
	return normalized, true
}

// Notes.

func (h *httpHandler) handleListNotes(c *gin.Context) {
	list, err := h.notes.ListNotes(c.Request.Context(), actorFrom(c), c.Param("roomID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": newNotePayloads(list)})
}

func (h *httpHandler) handleSaveNote(c *gin.Context) {
	var request saveNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	note, err := h.notes.SaveNote(c.Request.Context(), actorFrom(c), c.Param("roomID"), notes.NoteInput{
		FileName:   request.FileName,
		Content:    request.Content,
		Summary:    request.Summary,
		KeyPoints:  request.KeyPoints,
		Flashcards: request.Flashcards,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note))
}

// handleUploadNote stores an uploaded document as a note. With analyze=false
// only the extracted text is saved.
func (h *httpHandler) handleUploadNote(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)
	roomID := c.Param("roomID")
	if _, err := h.rooms.Membership(ctx, roomID, actor.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	request, ok := h.readAnalysisRequest(c, prompts.TaskAnalyze)
	if !ok {
		return
	}
	input := notes.NoteInput{}
	if request.File != nil {
		input.FileName = request.File.FileName
	}
	if analyze, _ := strconv.ParseBool(c.DefaultPostForm("analyze", "true")); analyze {
		response, err := h.analysis.Analyze(ctx, request)
		if err != nil {
			h.respondAnalysisError(c, err)
			return
		}
		input.Content = response.ExtractedText
		input.Summary = response.Result.Summary
		input.KeyPoints = response.Result.KeyPoints
		input.Flashcards = response.Result.Flashcards
	} else {
		text, err := h.analysis.ExtractText(ctx, request)
		if err != nil {
			h.respondAnalysisError(c, err)
			return
		}
		input.Content = text
	}
	note, err := h.notes.SaveNote(ctx, actor, roomID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, err := h.notes.GetNote(c.Request.Context(), actorFrom(c), c.Param("noteID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	var request updateNoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	note, err := h.notes.UpdateContent(c.Request.Context(), actorFrom(c), c.Param("noteID"), request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	if err := h.notes.DeleteNote(c.Request.Context(), actorFrom(c), c.Param("noteID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReplaceNoteFlashcards(c *gin.Context) {
	var request replaceFlashcardsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	note, err := h.notes.ReplaceFlashcards(c.Request.Context(), actorFrom(c), c.Param("noteID"), request.Flashcards, request.ExpectedVersion)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleAddNoteFlashcard(c *gin.Context) {
	card, ok := bindCard(c)
	if !ok {
		h.respondBadRequest(c, "question and answer are required")
		return
	}
	note, err := h.notes.AddFlashcard(c.Request.Context(), actorFrom(c), c.Param("noteID"), card)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleUpdateNoteFlashcard(c *gin.Context) {
	index, ok := cardIndex(c)
	if !ok {
		h.respondBadRequest(c, "index must be a non-negative integer")
		return
	}
	card, ok := bindCard(c)
	if !ok {
		h.respondBadRequest(c, "question and answer are required")
		return
	}
	note, err := h.notes.UpdateFlashcard(c.Request.Context(), actorFrom(c), c.Param("noteID"), index, card)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleDeleteNoteFlashcard(c *gin.Context) {
	index, ok := cardIndex(c)
	if !ok {
		h.respondBadRequest(c, "index must be a non-negative integer")
		return
	}
	note, err := h.notes.DeleteFlashcard(c.Request.Context(), actorFrom(c), c.Param("noteID"), index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}

func (h *httpHandler) handleExtractDeck(c *gin.Context) {
	var request renameDeckRequest
	// The body is optional; an empty one keeps the note's file name as title.
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	deck, err := h.decks.CreateFromNote(c.Request.Context(), actorFrom(c), c.Param("noteID"), request.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDeckPayload(deck))
}

// Decks.

func (h *httpHandler) handleListDecks(c *gin.Context) {
	list, err := h.decks.ListDecks(c.Request.Context(), actorFrom(c), c.Param("roomID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decks": newDeckPayloads(list)})
}

func (h *httpHandler) handleCreateDeck(c *gin.Context) {
	var request createDeckRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	deck, err := h.decks.CreateDeck(c.Request.Context(), actorFrom(c), c.Param("roomID"), request.Title, request.Flashcards)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDeckPayload(deck))
}

func (h *httpHandler) handleGetDeck(c *gin.Context) {
	deck, err := h.decks.GetDeck(c.Request.Context(), actorFrom(c), c.Param("deckID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleRenameDeck(c *gin.Context) {
	var request renameDeckRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	deck, err := h.decks.RenameDeck(c.Request.Context(), actorFrom(c), c.Param("deckID"), request.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleDeleteDeck(c *gin.Context) {
	if err := h.decks.DeleteDeck(c.Request.Context(), actorFrom(c), c.Param("deckID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReplaceDeckFlashcards(c *gin.Context) {
	var request replaceFlashcardsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	deck, err := h.decks.ReplaceFlashcards(c.Request.Context(), actorFrom(c), c.Param("deckID"), request.Flashcards, request.ExpectedVersion)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleAddDeckFlashcard(c *gin.Context) {
	card, ok := bindCard(c)
	if !ok {
		h.respondBadRequest(c, "question and answer are required")
		return
	}
	deck, err := h.decks.AddFlashcard(c.Request.Context(), actorFrom(c), c.Param("deckID"), card)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleUpdateDeckFlashcard(c *gin.Context) {
	index, ok := cardIndex(c)
	if !ok {
		h.respondBadRequest(c, "index must be a non-negative integer")
		return
	}
	card, ok := bindCard(c)
	if !ok {
		h.respondBadRequest(c, "question and answer are required")
		return
	}
	deck, err := h.decks.UpdateFlashcard(c.Request.Context(), actorFrom(c), c.Param("deckID"), index, card)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleDeleteDeckFlashcard(c *gin.Context) {
	index, ok := cardIndex(c)
	if !ok {
		h.respondBadRequest(c, "index must be a non-negative integer")
		return
	}
	deck, err := h.decks.DeleteFlashcard(c.Request.Context(), actorFrom(c), c.Param("deckID"), index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

// Chat.

func (h *httpHandler) handleListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.chat.ListMessages(c.Request.Context(), actorFrom(c), c.Param("roomID"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": newMessagePayloads(list)})
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	var request sendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	message, err := h.chat.SendMessage(c.Request.Context(), actorFrom(c), c.Param("roomID"), request.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMessagePayload(message))
}

// Goals.

func (h *httpHandler) handleListGoals(c *gin.Context) {
	list, err := h.goals.ListGoals(c.Request.Context(), actorFrom(c), c.Param("roomID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": newGoalPayloads(list)})
}

func (h *httpHandler) handleCreateGoal(c *gin.Context) {
	var request createGoalRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, "invalid JSON body")
		return
	}
	goal, err := h.goals.CreateGoal(c.Request.Context(), actorFrom(c), c.Param("roomID"), goals.GoalInput{
		GoalName:   request.GoalName,
		AssignedTo: request.AssignedTo,
		Deadline:   request.Deadline,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newGoalPayload(goal))
}

func (h *httpHandler) handleSetGoalProgress(c *gin.Context) {
	var request progressRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Progress == nil {
		h.respondBadRequest(c, "progress is required")
		return
	}
	goal, err := h.goals.SetProgress(c.Request.Context(), actorFrom(c), c.Param("goalID"), *request.Progress)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGoalPayload(goal))
}

func (h *httpHandler) handleCompleteGoal(c *gin.Context) {
	goal, err := h.goals.MarkComplete(c.Request.Context(), actorFrom(c), c.Param("goalID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGoalPayload(goal))
}

func (h *httpHandler) handleDeleteGoal(c *gin.Context) {
	if err := h.goals.DeleteGoal(c.Request.Context(), actorFrom(c), c.Param("goalID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
