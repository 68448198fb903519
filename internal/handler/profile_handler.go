package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
)

// ProfileHandler handles the caller's profile.
type ProfileHandler struct {
	profiles identity.Profiles
	ledger   *service.AirtimeLedger
	log      *zap.Logger
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(profiles identity.Profiles, ledger *service.AirtimeLedger, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, ledger: ledger, log: log}
}

// Verify godoc
// PUT /profile/verification {graduationYear, school}
func (h *ProfileHandler) Verify(c *gin.Context) {
	var req model.VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.Verify(c.Request.Context(), CurrentUser(c), req.GraduationYear, req.School)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Airtime godoc
// GET /profile/airtime
func (h *ProfileHandler) Airtime(c *gin.Context) {
	userID := CurrentUser(c)
	total, err := h.ledger.TotalForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "total_sec": total})
}
