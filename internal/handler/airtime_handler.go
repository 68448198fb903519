package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
)

// Actions accepted by POST /admin/airtime.
const (
	AirtimeActionStart = "start"
	AirtimeActionStop  = "stop"
)

// AirtimeHandler exposes the airtime ledger.
type AirtimeHandler struct {
	ledger *service.AirtimeLedger
	log    *zap.Logger
}

// NewAirtimeHandler creates an airtime handler.
func NewAirtimeHandler(ledger *service.AirtimeLedger, log *zap.Logger) *AirtimeHandler {
	return &AirtimeHandler{ledger: ledger, log: log}
}

// Record godoc
// POST /admin/airtime {action, source, logId}
// start opens an entry for the caller; stop closes logId.
func (h *AirtimeHandler) Record(c *gin.Context) {
	var req model.AirtimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	switch req.Action {
	case AirtimeActionStart:
		if req.Source == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source required"})
			return
		}
		id, err := h.ledger.OpenNow(ctx, CurrentUser(c), req.Source)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"logId": id})
	case AirtimeActionStop:
		if req.LogID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "logId required"})
			return
		}
		entry, err := h.ledger.CloseStandalone(ctx, req.LogID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be start or stop"})
	}
}

// List godoc
// GET /admin/airtime?limit=N
func (h *AirtimeHandler) List(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	entries, err := h.ledger.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
