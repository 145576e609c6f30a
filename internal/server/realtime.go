package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Iam-samyog/EduCircle/internal/realtime"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer and the session check.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h *httpHandler) registerStreamRoutes(group *gin.RouterGroup) {
	group.GET("/rooms/:roomID/stream", h.handleRoomStream)
	group.GET("/rooms/:roomID/ws", h.handleRoomSocket)
}

// handleRoomStream serves room events as server-sent events. Each frame
// carries the event type as its name and the JSON event as data.
func (h *httpHandler) handleRoomStream(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)
	roomID := c.Param("roomID")
	if _, err := h.rooms.Membership(ctx, roomID, actor.UserID); err != nil {
		h.respondError(c, err)
		return
	}

	events, unsubscribe := h.dispatcher.Subscribe(ctx, roomID)
	defer unsubscribe()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtime.EventHeartbeat, h.heartbeatEvent(roomID))
	c.Writer.Flush()

	h.logger.Debug("room stream opened", zap.String("room_id", roomID), zap.String("user_id", actor.UserID))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-ticker.C:
			c.SSEvent(realtime.EventHeartbeat, h.heartbeatEvent(roomID))
			return true
		}
	})
	h.logger.Debug("room stream closed", zap.String("room_id", roomID), zap.String("user_id", actor.UserID))
}

// handleRoomSocket serves the same event feed over a websocket. Inbound
// frames are ignored apart from control messages.
func (h *httpHandler) handleRoomSocket(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)
	roomID := c.Param("roomID")
	if _, err := h.rooms.Membership(ctx, roomID, actor.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	events, unsubscribe := h.dispatcher.Subscribe(ctx, roomID)
	defer unsubscribe()
	closed := make(chan struct{})
	go readSocket(conn, closed)
	h.writeSocket(conn, roomID, events, closed)
}

func readSocket(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *httpHandler) writeSocket(conn *websocket.Conn, roomID string, events <-chan realtime.Event, closed <-chan struct{}) {
	ping := time.NewTicker(wsPingPeriod)
	heartbeat := time.NewTicker(h.heartbeat)
	defer func() {
		ping.Stop()
		heartbeat.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed", zap.String("room_id", roomID), zap.Error(err))
				return
			}
		case <-heartbeat.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(h.heartbeatEvent(roomID)); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *httpHandler) heartbeatEvent(roomID string) realtime.Event {
	return realtime.Event{RoomID: roomID, Type: realtime.EventHeartbeat, Timestamp: h.clock().UTC()}
}
