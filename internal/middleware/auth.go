package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cmc-connect/internal/auth"
)

// AuthMiddleware validates the Authorization header against the token
// service and puts the session on the gin context.
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		session, err := authService.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", session.UserID)
		c.Set("role", session.Role)
		c.Set("token", parts[1])
		c.Next()
	}
}
