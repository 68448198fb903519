package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/errs"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
)

// LiveHandler handles REST API for on-air sessions.
type LiveHandler struct {
	svc *service.LiveService
	ws  *service.WSConfig
	log *zap.Logger
}

// NewLiveHandler creates a live session handler. wsBaseURL prefixes the
// on-air status socket returned to clients.
func NewLiveHandler(svc *service.LiveService, wsBaseURL string, log *zap.Logger) *LiveHandler {
	return &LiveHandler{svc: svc, ws: &service.WSConfig{BaseURL: wsBaseURL}, log: log}
}

// Start godoc
// POST /live/start {source}
// A retried start returns the caller's existing session with 200.
func (h *LiveHandler) Start(c *gin.Context) {
	var req model.StartLiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Start(c.Request.Context(), CurrentUser(c), req.Source)
	if res != nil {
		res.WSURL = h.ws.LiveURL()
	}
	switch {
	case errors.Is(err, errs.ErrAlreadyLive) && res != nil:
		c.JSON(http.StatusOK, res)
	case err != nil:
		respondError(c, h.log, err)
	default:
		c.JSON(http.StatusCreated, res)
	}
}

// Stop godoc
// POST /live/:id/stop
func (h *LiveHandler) Stop(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if sess.UserID != CurrentUser(c) {
		respondError(c, h.log, errs.ErrForbidden)
		return
	}
	stopped, err := h.svc.Stop(ctx, sess.ID)
	if err != nil && !errors.Is(err, errs.ErrAlreadyStopped) {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stopped)
}

// Current godoc
// GET /live/current
func (h *LiveHandler) Current(c *gin.Context) {
	sess, err := h.svc.CurrentlyLive(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	state := model.LiveStateIdle
	if sess != nil {
		state = sess.State
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "session": sess, "ws_url": h.ws.LiveURL()})
}
