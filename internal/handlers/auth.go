package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cmc-connect/internal/auth"
	"cmc-connect/internal/telemetry"
)

// AuthHandler exposes login and logout.
type AuthHandler struct {
	auth  *auth.Service
	audit *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(authService *auth.Service, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{auth: authService, audit: audit}
}

// Login exchanges credentials for a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.audit.Emit(c.Request.Context(), "info", "user logged in", requestIDFromContext(c), &user.ID)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.auth.Expiry().Seconds()),
		"user":       user,
	})
}

// Logout invalidates the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString("token")
	if token != "" {
		h.auth.Logout(token)
	}
	c.Status(http.StatusNoContent)
}
