package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/errs"
	"go.uber.org/zap"
)

// respondError maps domain errors to status codes. Anything outside the
// taxonomy is logged and reported as 500 without details.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.Is(err, errs.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied", "message": err.Error()})
	case errors.Is(err, errs.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrMisconfigured):
		// Деплой без ключей LiveKit: клиенту 400, не 500.
		c.JSON(http.StatusBadRequest, gin.H{"error": "feature unavailable", "message": err.Error()})
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
}
