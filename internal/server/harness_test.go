package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Iam-samyog/EduCircle/internal/analysis"
	"github.com/Iam-samyog/EduCircle/internal/auth"
	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/extract"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/llm"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
	"github.com/Iam-samyog/EduCircle/internal/testutil"
	"github.com/Iam-samyog/EduCircle/internal/users"
)

const testSigningSecret = "server-test-secret"

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type stubInvoker struct {
	text  string
	err   error
	calls int
}

func (s *stubInvoker) Invoke(context.Context, string) (llm.Invocation, error) {
	s.calls++
	if s.err != nil {
		return llm.Invocation{}, s.err
	}
	return llm.Invocation{Model: "gemini-1.5-flash", Text: s.text, Attempts: 1}, nil
}

type harness struct {
	t          *testing.T
	handler    http.Handler
	issuer     *auth.TokenIssuer
	invoker    *stubInvoker
	dispatcher *realtime.Dispatcher
	rooms      *rooms.Service
	ready      bool
}

type harnessOption func(*Dependencies)

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	db := testutil.OpenDatabase(t,
		&users.Profile{},
		&rooms.Room{}, &rooms.Participant{}, &rooms.JoinRequest{},
		&notes.Note{}, &decks.Deck{}, &chat.Message{}, &goals.Goal{},
	)
	clock := func() time.Time { return testNow }
	dispatcher := realtime.NewDispatcher()
	bus := realtime.NewLocalBus(dispatcher)

	roomService, err := rooms.NewService(rooms.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "ROOM"}, Publisher: bus})
	if err != nil {
		t.Fatalf("rooms service: %v", err)
	}
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "note"}, Members: roomService, Publisher: bus})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	deckService, err := decks.NewService(decks.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "deck"}, Members: roomService, Notes: noteService, Publisher: bus})
	if err != nil {
		t.Fatalf("decks service: %v", err)
	}
	chatService, err := chat.NewService(chat.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "msg"}, Members: roomService, Publisher: bus})
	if err != nil {
		t.Fatalf("chat service: %v", err)
	}
	goalService, err := goals.NewService(goals.ServiceConfig{Database: db, Clock: clock, IDProvider: &testutil.SequentialIDs{Prefix: "goal"}, Members: roomService, Publisher: bus})
	if err != nil {
		t.Fatalf("goals service: %v", err)
	}
	for _, cascade := range []rooms.CascadeFunc{noteService.DeleteByRoom, deckService.DeleteByRoom, chatService.DeleteByRoom, goalService.DeleteByRoom} {
		roomService.AddCascade(cascade)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}

	h := &harness{t: t, invoker: &stubInvoker{}, dispatcher: dispatcher, rooms: roomService, ready: true}
	analysisService, err := analysis.NewService(analysis.ServiceConfig{
		Extractor: extract.NewRegistry(),
		Invoker:   h.invoker,
		Ready:     func() bool { return h.ready },
	})
	if err != nil {
		t.Fatalf("analysis service: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret), Clock: time.Now})
	if err != nil {
		t.Fatalf("session validator: %v", err)
	}
	h.issuer, err = auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	deps := Dependencies{
		SessionValidator:  validator,
		Users:             userService,
		Analysis:          analysisService,
		Rooms:             roomService,
		Notes:             noteService,
		Decks:             deckService,
		Chat:              chatService,
		Goals:             goalService,
		Dispatcher:        dispatcher,
		AllowedOrigins:    []string{"http://localhost:5173"},
		HeartbeatInterval: time.Hour,
		Clock:             clock,
		Logger:            zap.NewNop(),
	}
	for _, option := range options {
		option(&deps)
	}
	h.handler, err = NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func (h *harness) token(userID, displayName string) string {
	h.t.Helper()
	token, _, err := h.issuer.IssueSessionToken(context.Background(), auth.Identity{
		UserID:      userID,
		Email:       userID + "@example.com",
		DisplayName: displayName,
	})
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	return token
}

// do sends a JSON request as userID (anonymous when empty) and decodes the
// response body into out when out is non-nil.
func (h *harness) do(method, path, userID string, body any, out any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		request.Header.Set("Authorization", "Bearer "+h.token(userID, displayNames[userID]))
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	if out != nil && recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
			h.t.Fatalf("decode %s %s: %v (%s)", method, path, err, recorder.Body.String())
		}
	}
	return recorder
}

func (h *harness) expectStatus(recorder *httptest.ResponseRecorder, status int) {
	h.t.Helper()
	if recorder.Code != status {
		h.t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

// createRoom creates a public room owned by userID and joins members to it.
func (h *harness) createRoom(owner string, members ...string) roomPayload {
	h.t.Helper()
	var room roomPayload
	h.expectStatus(h.do(http.MethodPost, "/api/rooms", owner, map[string]any{"name": "Physics"}, &room), http.StatusCreated)
	for _, member := range members {
		h.expectStatus(h.do(http.MethodPost, "/api/rooms/"+room.ID+"/join", member, nil, nil), http.StatusOK)
	}
	return room
}

var displayNames = map[string]string{
	"user-ada":  "Ada",
	"user-ben":  "Ben",
	"user-cara": "Cara",
	"user-dan":  "Dan",
}
