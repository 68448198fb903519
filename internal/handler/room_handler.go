package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
)

// RoomHandler handles REST API for rooms and membership.
type RoomHandler struct {
	catalog *service.RoomCatalog
	members *service.MembershipService
	ws      *service.WSConfig
	log     *zap.Logger
}

// NewRoomHandler creates a room handler.
func NewRoomHandler(catalog *service.RoomCatalog, members *service.MembershipService, wsBaseURL string, log *zap.Logger) *RoomHandler {
	return &RoomHandler{
		catalog: catalog,
		members: members,
		ws:      &service.WSConfig{BaseURL: wsBaseURL},
		log:     log,
	}
}

// GetRoom godoc
// GET /room?type=alumni|year
// Resolves the alumni room, joins the caller and returns recent messages.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	userID := CurrentUser(c)
	room, err := h.catalog.ResolveForUser(c.Request.Context(), userID, c.Query("type"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.join(c, userID, room.ID)
}

// ListRooms godoc
// GET /rooms?category=
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.catalog.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom godoc
// POST /rooms
// Find-or-create of a public or private room by key. Alumni rooms are
// resolved through GET /room.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req model.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Kind != model.RoomKindPublic && req.Kind != model.RoomKindPrivate {
		respondError(c, h.log, fmt.Errorf("kind must be public or private: %w", errs.ErrInvalidScope))
		return
	}
	room, err := h.catalog.Resolve(c.Request.Context(), req.Kind, req.Key, req.Category)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "ws_url": h.ws.RoomURL(room.ID)})
}

// JoinRoom godoc
// POST /rooms/:id/join
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	h.join(c, CurrentUser(c), c.Param("id"))
}

// LeaveRoom godoc
// POST /rooms/:id/leave
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	if err := h.members.Leave(c.Request.Context(), CurrentUser(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RoomMessages godoc
// GET /rooms/:id/messages?limit=
func (h *RoomHandler) RoomMessages(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	msgs, err := h.members.History(c.Request.Context(), CurrentUser(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *RoomHandler) join(c *gin.Context, userID, roomID string) {
	m, err := h.members.Join(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, model.RoomResponse{
		Room:     m.Room,
		Messages: m.Messages,
		WSURL:    h.ws.RoomURL(m.Room.ID),
	})
}

// parseLimit reads ?limit=; absent means the service default.
func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}
