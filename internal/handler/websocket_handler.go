package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/realtime"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	defaultDevice = "default"
)

// RealtimeWSHandler handles WebSocket subscriptions for /ws/rooms/:id and /ws/live.
type RealtimeWSHandler struct {
	hub            *realtime.Hub
	members        *service.MembershipService
	maxMessageSize int64
	logger         *zap.Logger
}

// NewRealtimeWSHandler creates the WebSocket handler.
func NewRealtimeWSHandler(hub *realtime.Hub, members *service.MembershipService, maxMessageSize int64, logger *zap.Logger) *RealtimeWSHandler {
	return &RealtimeWSHandler{hub: hub, members: members, maxMessageSize: maxMessageSize, logger: logger}
}

// ServeRoom upgrades the request and streams room events to a member.
// Path: /ws/rooms/:id?device=
// A second subscription from the same user and device replaces the first.
func (h *RealtimeWSHandler) ServeRoom(c *gin.Context) {
	userID := CurrentUser(c)
	roomID := c.Param("id")
	ok, err := h.members.IsMember(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !ok {
		// History also tells "no such room" apart from "not a member".
		if _, err := h.members.History(c.Request.Context(), userID, roomID, 1); err != nil {
			respondError(c, h.logger, err)
			return
		}
		respondError(c, h.logger, errs.ErrNotAMember)
		return
	}
	h.serve(c, roomID, userID)
}

// ServeLive streams on-air status changes to any authenticated listener.
// Path: /ws/live?device=
func (h *RealtimeWSHandler) ServeLive(c *gin.Context) {
	h.serve(c, realtime.LiveChannel, CurrentUser(c))
}

func (h *RealtimeWSHandler) serve(c *gin.Context, room, userID string) {
	device := c.Query("device")
	if device == "" {
		device = defaultDevice
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer, cleanup := h.hub.Register(room, userID, device)
	defer cleanup()

	// Writer goroutine: send from peer.Send to connection
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, peer)
	}()

	h.readPump(conn, peer)
	cleanup()
	<-done
}

// readPump only services control frames; clients do not publish over the socket.
func (h *RealtimeWSHandler) readPump(conn *websocket.Conn, p *realtime.Peer) {
	if h.maxMessageSize > 0 {
		conn.SetReadLimit(h.maxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.String("room", p.Room), zap.Error(err))
			}
			return
		}
	}
}

func (h *RealtimeWSHandler) writePump(conn *websocket.Conn, p *realtime.Peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case data, ok := <-p.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
