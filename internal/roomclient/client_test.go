package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/reconcile"
)

const testRoom = "ROOM-1"

// fakeRoomAPI serves the chat endpoints of one room from memory.
type fakeRoomAPI struct {
	mu       sync.Mutex
	messages []messagePayload
	clock    int64
	failures int
	events   chan realtime.Event
	tokens   []string
}

func newFakeRoomAPI() *fakeRoomAPI {
	return &fakeRoomAPI{clock: 1_700_000_000_000, events: make(chan realtime.Event, 8)}
}

func (f *fakeRoomAPI) add(userID, text string) messagePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock++
	message := messagePayload{
		ID:        fmt.Sprintf("msg-%d", len(f.messages)+1),
		RoomID:    testRoom,
		UserID:    userID,
		UserName:  userID,
		Text:      text,
		Timestamp: f.clock,
	}
	f.messages = append(f.messages, message)
	return message
}

func (f *fakeRoomAPI) failNext(count int) {
	f.mu.Lock()
	f.failures = count
	f.mu.Unlock()
}

func (f *fakeRoomAPI) firstToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return ""
	}
	return f.tokens[0]
}

func (f *fakeRoomAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokens = append(f.tokens, r.Header.Get("Authorization"))
	f.mu.Unlock()
	switch {
	case r.URL.Path == "/api/rooms/"+testRoom+"/messages" && r.Method == http.MethodGet:
		f.mu.Lock()
		body, _ := json.Marshal(map[string]any{"messages": f.messages})
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	case r.URL.Path == "/api/rooms/"+testRoom+"/messages" && r.Method == http.MethodPost:
		f.mu.Lock()
		fail := f.failures > 0
		if fail {
			f.failures--
		}
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal_error","message":"database unavailable"}`))
			return
		}
		var request struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&request)
		message := f.add("user-ben", request.Text)
		body, _ := json.Marshal(message)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	case r.URL.Path == "/api/rooms/"+testRoom+"/stream":
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-f.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				_, _ = fmt.Fprintf(w, "event:%s\ndata:%s\n\n", event.Type, data)
				flusher.Flush()
			}
		}
	case strings.HasPrefix(r.URL.Path, "/api/rooms/"):
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"permission_denied","message":"You do not have permission to change this item.","code":"rooms.membership.not_participant"}`))
	default:
		http.NotFound(w, r)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T, api *fakeRoomAPI, roomID string) (*Client, *testClock) {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	client, err := New(Config{
		BaseURL:        server.URL,
		RoomID:         roomID,
		UserID:         "user-ben",
		UserName:       "Ben",
		Token:          "session-token",
		PendingTimeout: 10 * time.Second,
		Clock:          clock.Now,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, clock
}

func texts(view MessageView) []string {
	out := make([]string, 0, len(view.Items))
	for _, item := range view.Items {
		out = append(out, item.Value.Text)
	}
	return out
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{RoomID: testRoom, UserID: "u"}); !errors.Is(err, errMissingBaseURL) {
		t.Fatalf("expected missing base url, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://localhost", UserID: "u"}); !errors.Is(err, errMissingRoomID) {
		t.Fatalf("expected missing room id, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://localhost", RoomID: testRoom}); !errors.Is(err, errMissingUserID) {
		t.Fatalf("expected missing user id, got %v", err)
	}
}

func TestSendConfirmsWithoutDuplicates(t *testing.T) {
	api := newFakeRoomAPI()
	api.add("user-ada", "welcome")
	client, _ := newTestClient(t, api, testRoom)
	ctx := context.Background()

	if _, err := client.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	localID, err := client.Send(ctx, "  hello  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := client.tracker.Get(localID); ok {
		t.Fatalf("confirmed message should no longer be tracked")
	}

	view, err := client.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := texts(view); len(got) != 2 || got[0] != "welcome" || got[1] != "hello" {
		t.Fatalf("unexpected view %v", got)
	}
	for _, item := range view.Items {
		if item.LocalID != "" {
			t.Fatalf("no optimistic rows should remain: %#v", item)
		}
	}
	if token := api.firstToken(); token != "Bearer session-token" {
		t.Fatalf("expected bearer token, got %q", token)
	}
}

func TestRepeatedTextIsNotConfirmedByOlderMessage(t *testing.T) {
	api := newFakeRoomAPI()
	api.add("user-ben", "ok")
	client, _ := newTestClient(t, api, testRoom)
	ctx := context.Background()
	if _, err := client.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	api.failNext(1)
	localID, err := client.Send(ctx, "ok")
	if err == nil {
		t.Fatalf("expected send to fail")
	}
	view := client.View()
	if len(view.Items) != 2 || view.Items[1].LocalID != localID || view.Items[1].Status != reconcile.StatusFailed {
		t.Fatalf("expected a failed optimistic row after the old message, got %#v", view.Items)
	}
}

func TestFailedSendCanBeResentOrDiscarded(t *testing.T) {
	api := newFakeRoomAPI()
	client, _ := newTestClient(t, api, testRoom)
	ctx := context.Background()

	api.failNext(2)
	first, err := client.Send(ctx, "first")
	if err == nil {
		t.Fatalf("expected failure")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "database unavailable" {
		t.Fatalf("unexpected error %v", err)
	}
	second, _ := client.Send(ctx, "second")

	if err := client.Resend(ctx, first); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if err := client.Discard(second); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if err := client.Discard(first); !errors.Is(err, reconcile.ErrUnknownEntity) {
		t.Fatalf("confirmed message cannot be discarded, got %v", err)
	}
	view, err := client.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := texts(view); len(got) != 1 || got[0] != "first" {
		t.Fatalf("unexpected view %v", got)
	}
}

func TestAPIErrorsUnwrapToKinds(t *testing.T) {
	api := newFakeRoomAPI()
	client, _ := newTestClient(t, api, "ROOM-404")
	_, err := client.Refresh(context.Background())
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "rooms.membership.not_participant" {
		t.Fatalf("unexpected error %#v", err)
	}
	if _, err := client.Send(context.Background(), "   "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected blank text to be rejected locally, got %v", err)
	}
}

func TestFollowRefreshesOnMessageEvents(t *testing.T) {
	api := newFakeRoomAPI()
	api.add("user-ada", "first")
	client, clock := newTestClient(t, api, testRoom)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	views := make(chan MessageView, 8)
	done := make(chan error, 1)
	go func() {
		done <- client.Follow(ctx, func(view MessageView) { views <- view })
	}()

	initial := <-views
	if got := texts(initial); len(got) != 1 || got[0] != "first" {
		t.Fatalf("unexpected initial view %v", got)
	}

	api.add("user-ada", "second")
	api.events <- realtime.Event{RoomID: testRoom, Type: realtime.EventMessageCreated}
	if got := texts(<-views); len(got) != 2 || got[1] != "second" {
		t.Fatalf("unexpected refreshed view %v", got)
	}

	if _, err := client.tracker.Insert(reconcile.MessageEntity{}, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	clock.Advance(11 * time.Second)
	api.events <- realtime.Event{RoomID: testRoom, Type: realtime.EventHeartbeat}
	expired := <-views
	last := expired.Items[len(expired.Items)-1]
	if last.Status != reconcile.StatusFailed {
		t.Fatalf("expected timed-out pending row to fail, got %#v", last)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("follow should stop cleanly on cancel, got %v", err)
	}
}

func TestFrameReaderParsesSpacedAndCompactFrames(t *testing.T) {
	input := ": comment\n\nevent: heartbeat\ndata: {\"roomId\":\"R\",\"type\":\"heartbeat\"}\n\n" +
		"event:note-changed\ndata:{\"roomId\":\"R\"}\n\n"
	frames := newFrameReader(strings.NewReader(input))
	first, err := frames.next()
	if err != nil || first.Type != realtime.EventHeartbeat || first.RoomID != "R" {
		t.Fatalf("unexpected first frame %#v (%v)", first, err)
	}
	second, err := frames.next()
	if err != nil || second.Type != realtime.EventNoteChanged {
		t.Fatalf("unexpected second frame %#v (%v)", second, err)
	}
	if _, err := frames.next(); err == nil {
		t.Fatalf("expected EOF")
	}
}
