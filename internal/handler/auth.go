package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/onair-service/internal/identity"
)

const ctxUserID = "user_id"

// RequireUser rejects requests without a valid identity and stores the
// caller's user id in the gin context.
func RequireUser(p identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := p.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// CurrentUser returns the id stored by RequireUser.
func CurrentUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
