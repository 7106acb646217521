package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusride/internal/auth"
)

const callerIDKey = "caller_id"

// Authenticate requires a valid bearer token and stores its subject as the
// caller ID.
func Authenticate(issuer *auth.Issuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "Unauthorized"})
			return
		}

		claims, err := issuer.Parse(token)
		if err != nil {
			logger.Debug("rejected token", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "kind": "Unauthorized"})
			return
		}

		c.Set(callerIDKey, claims.Subject)
		c.Next()
	}
}

// CallerID returns the authenticated user ID, or "" on public routes.
func CallerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}
