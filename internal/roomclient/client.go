// Package roomclient talks to the room API on behalf of one user in one
// room. Chat sends are shown immediately and confirmed against the history
// endpoint.
package roomclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/reconcile"
)

const (
	defaultHistoryLimit = 200
	defaultHTTPTimeout  = 30 * time.Second
	maxErrorBodyBytes   = 64 << 10
)

var (
	errMissingBaseURL = errors.New("roomclient: base url required")
	errMissingRoomID  = errors.New("roomclient: room id required")
	errMissingUserID  = errors.New("roomclient: user id required")
	// ErrStreamClosed reports that the server ended the event stream.
	ErrStreamClosed = errors.New("roomclient: event stream closed")
)

// MessageView is the merged chat list shown to the user.
type MessageView = reconcile.View[reconcile.MessageEntity]

// Config describes the room and identity a Client acts for.
type Config struct {
	BaseURL        string
	RoomID         string
	UserID         string
	UserName       string
	Token          string
	HistoryLimit   int
	PendingTimeout time.Duration
	HTTPClient     *http.Client
	Clock          func() time.Time
	IDProvider     reconcile.IDProvider
	Logger         *zap.Logger
}

// Client keeps the last confirmed history and the local pending messages.
type Client struct {
	baseURL      *url.URL
	roomID       string
	userID       string
	userName     string
	token        string
	historyLimit int
	httpClient   *http.Client
	clock        func() time.Time
	logger       *zap.Logger
	tracker      *reconcile.Tracker[reconcile.MessageEntity]

	mu       sync.Mutex
	snapshot []reconcile.MessageEntity
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Client, error) {
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		return nil, errMissingBaseURL
	}
	base, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("roomclient: parse base url: %w", err)
	}
	roomID := strings.ToUpper(strings.TrimSpace(cfg.RoomID))
	if roomID == "" {
		return nil, errMissingRoomID
	}
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		return nil, errMissingUserID
	}
	client := &Client{
		baseURL:      base,
		roomID:       roomID,
		userID:       userID,
		userName:     strings.TrimSpace(cfg.UserName),
		token:        strings.TrimSpace(cfg.Token),
		historyLimit: cfg.HistoryLimit,
		httpClient:   cfg.HTTPClient,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if client.historyLimit <= 0 {
		client.historyLimit = defaultHistoryLimit
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if client.clock == nil {
		client.clock = time.Now
	}
	if client.logger == nil {
		client.logger = zap.NewNop()
	}
	client.tracker = reconcile.NewTracker[reconcile.MessageEntity](reconcile.TrackerConfig{
		Timeout:    cfg.PendingTimeout,
		Clock:      client.clock,
		IDProvider: cfg.IDProvider,
	})
	return client, nil
}

// View merges the last fetched history with local pending and failed sends.
func (c *Client) View() MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Apply(c.snapshot)
}

// Send shows text immediately as pending and posts it. A failed post leaves
// the message in the view as failed; the returned local id can be passed to
// Resend or Discard.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", apperr.Wrap(apperr.ErrInvalidInput, "message text is empty")
	}
	pending := reconcile.MessageEntity{Message: chat.Message{
		RoomID:          c.roomID,
		UserID:          c.userID,
		UserName:        c.userName,
		Text:            trimmed,
		TimestampMillis: c.clock().UnixMilli(),
	}}
	localID, err := c.tracker.Insert(pending, c.watermark())
	if err != nil {
		return "", fmt.Errorf("roomclient: track message: %w", err)
	}
	return localID, c.post(ctx, localID, trimmed)
}

// Resend retries a failed message.
func (c *Client) Resend(ctx context.Context, localID string) error {
	value, err := c.tracker.Resend(localID, c.watermark())
	if err != nil {
		return err
	}
	return c.post(ctx, localID, value.Text)
}

// Discard removes a failed message from the view.
func (c *Client) Discard(localID string) error {
	return c.tracker.Discard(localID)
}

// Refresh reloads the history and returns the merged view.
func (c *Client) Refresh(ctx context.Context) (MessageView, error) {
	query := url.Values{"limit": []string{strconv.Itoa(c.historyLimit)}}
	var body struct {
		Messages []messagePayload `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.roomPath("messages"), query, nil, &body); err != nil {
		return MessageView{}, err
	}
	history := make([]reconcile.MessageEntity, 0, len(body.Messages))
	for _, payload := range body.Messages {
		history = append(history, reconcile.MessageEntity{Message: payload.message()})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = history
	return c.tracker.Apply(c.snapshot), nil
}

// Follow listens to the room event stream and calls onChange with a fresh
// view whenever chat history changes or a pending send times out. It returns
// nil when ctx is cancelled.
func (c *Client) Follow(ctx context.Context, onChange func(MessageView)) error {
	request, err := c.newRequest(ctx, http.MethodGet, c.roomPath("stream"), nil, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "text/event-stream")
	streamClient := *c.httpClient
	streamClient.Timeout = 0
	response, err := streamClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("roomclient: open stream: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return decodeAPIError(response)
	}

	view, err := c.Refresh(ctx)
	if err != nil {
		return err
	}
	onChange(view)

	frames := newFrameReader(response.Body)
	for {
		event, err := frames.next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}
			return fmt.Errorf("roomclient: read stream: %w", err)
		}
		switch event.Type {
		case realtime.EventMessageCreated:
			view, err := c.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Warn("history refresh failed", zap.String("room_id", c.roomID), zap.Error(err))
				continue
			}
			onChange(view)
		case realtime.EventHeartbeat:
			if expired := c.tracker.Expire(); len(expired) > 0 {
				c.logger.Info("pending messages timed out", zap.Strings("local_ids", expired))
				onChange(c.View())
			}
		case realtime.EventRoomDeleted:
			return apperr.Wrap(apperr.ErrNotFound, "room %s was deleted", c.roomID)
		}
	}
}

func (c *Client) post(ctx context.Context, localID, text string) error {
	var created messagePayload
	err := c.doJSON(ctx, http.MethodPost, c.roomPath("messages"), nil, map[string]string{"text": text}, &created)
	if err != nil {
		if markErr := c.tracker.MarkFailed(localID, err); markErr != nil {
			c.logger.Debug("failed message already settled", zap.String("local_id", localID), zap.Error(markErr))
		}
		return err
	}
	c.mu.Lock()
	c.snapshot = append(c.snapshot, reconcile.MessageEntity{Message: created.message()})
	c.tracker.Apply(c.snapshot)
	c.mu.Unlock()
	return nil
}

// watermark is one past the newest confirmed timestamp. The server assigns
// strictly increasing timestamps per room, so an older identical message
// cannot confirm a new send.
func (c *Client) watermark() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var newest int64
	for _, message := range c.snapshot {
		if message.TimestampMillis > newest {
			newest = message.TimestampMillis
		}
	}
	return newest + 1
}

func (c *Client) roomPath(suffix string) string {
	return "/api/rooms/" + url.PathEscape(c.roomID) + "/" + suffix
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	if query != nil {
		target.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("roomclient: encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("roomclient: build request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	return request, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	request, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("roomclient: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("roomclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

type messagePayload struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (p messagePayload) message() chat.Message {
	return chat.Message{
		MessageID:       p.ID,
		RoomID:          p.RoomID,
		UserID:          p.UserID,
		UserName:        p.UserName,
		Text:            p.Text,
		TimestampMillis: p.Timestamp,
	}
}

// frameReader decodes server-sent event frames carrying realtime events.
type frameReader struct {
	scanner *bufio.Scanner
}

func newFrameReader(r io.Reader) *frameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &frameReader{scanner: scanner}
}

func (f *frameReader) next() (realtime.Event, error) {
	var name string
	var data strings.Builder
	for f.scanner.Scan() {
		line := f.scanner.Text()
		switch {
		case line == "":
			if name == "" && data.Len() == 0 {
				continue
			}
			var event realtime.Event
			if data.Len() > 0 {
				if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
					return realtime.Event{}, fmt.Errorf("decode event %q: %w", name, err)
				}
			}
			if event.Type == "" {
				event.Type = name
			}
			return event, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := f.scanner.Err(); err != nil {
		return realtime.Event{}, err
	}
	return realtime.Event{}, io.EOF
}
