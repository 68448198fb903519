package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/livekit"
	"github.com/psds-microservice/onair-service/internal/model"
	"go.uber.org/zap"
)

// LiveKitHandler mints media transport tokens and playback URLs.
type LiveKitHandler struct {
	issuer *livekit.Issuer
	log    *zap.Logger
}

// NewLiveKitHandler creates a LiveKit handler.
func NewLiveKitHandler(issuer *livekit.Issuer, log *zap.Logger) *LiveKitHandler {
	return &LiveKitHandler{issuer: issuer, log: log}
}

// Token godoc
// POST /livekit-token {roomName, identity, publish}
func (h *LiveKitHandler) Token(c *gin.Context) {
	var req model.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tok, err := h.issuer.MintToken(req.RoomName, req.Identity, req.Publish)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

// StartEgress godoc
// POST /livekit-egress/start {roomName}
func (h *LiveKitHandler) StartEgress(c *gin.Context) {
	var req model.EgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	url, err := h.issuer.StartEgress(req.RoomName)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playbackUrl": url})
}
