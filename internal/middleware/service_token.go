package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/savora-ai/savora-backend/internal/handlers"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
)

// ServiceToken gates the API behind a shared-secret header for
// service-to-service calls. An empty configured token disables the check,
// which is only acceptable in local development.
func ServiceToken(log *logger.Logger, token string) gin.HandlerFunc {
	if token == "" {
		log.Warn("SERVICE_TOKEN not set; API is unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		got := c.GetHeader("X-Service-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			handlers.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid service token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
