package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cmc-connect/internal/models"
	"cmc-connect/internal/repositories"
)

// UserHandler exposes the user directory and push subscription endpoints.
type UserHandler struct {
	users          repositories.UserRepository
	vapidPublicKey string
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, vapidPublicKey string) *UserHandler {
	return &UserHandler{users: users, vapidPublicKey: vapidPublicKey}
}

// ListUsers returns everyone a chat can be started with.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// VapidPublicKey hands out the key browsers need to subscribe for push.
func (h *UserHandler) VapidPublicKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "push notifications disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.vapidPublicKey})
}

// Subscribe stores or replaces the caller's push subscription.
func (h *UserHandler) Subscribe(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
		Keys     struct {
			P256dh string `json:"p256dh" binding:"required"`
			Auth   string `json:"auth" binding:"required"`
		} `json:"keys" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := models.PushSubscription{
		UserID:   c.GetInt("userID"),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.users.SaveSubscription(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}
	c.Status(http.StatusCreated)
}
