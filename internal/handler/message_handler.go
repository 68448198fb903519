package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
)

// MessageHandler handles posting chat messages.
type MessageHandler struct {
	members *service.MembershipService
	log     *zap.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(members *service.MembershipService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{members: members, log: log}
}

// PostMessage godoc
// POST /messages {roomId, content}
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req model.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.RoomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId required"})
		return
	}
	msg, err := h.members.PostMessage(c.Request.Context(), CurrentUser(c), req.RoomID, req.Content)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
