package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cmc-connect/internal/chatclient"
	"cmc-connect/internal/repositories"
	"cmc-connect/internal/telemetry"
)

// ChatHandler manages conversation and message endpoints.
type ChatHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	audit         *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		messages:      messages,
		audit:         audit,
	}
}

// CreateConversation starts a 1:1 or group conversation. Creating a 1:1
// conversation with the same member twice returns the existing one.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req struct {
		IsGroup   bool   `json:"is_group"`
		Name      string `json:"name"`
		MemberID  int    `json:"member_id"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")

	if req.IsGroup {
		if req.Name == "" || len(req.MemberIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group needs a name and members"})
			return
		}
		conversation, err := h.conversations.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
			return
		}
		h.audit.Emit(c.Request.Context(), "info", "group conversation created", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusCreated, conversation)
		return
	}

	if req.MemberID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id is required"})
		return
	}
	if req.MemberID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	conversation, err := h.conversations.CreateOrGetDirect(c.Request.Context(), userID, req.MemberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// ListConversations returns the caller's conversations, most recently
// active first.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	conversations, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetConversation returns one conversation the caller is a member of.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	conversation, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !conversation.HasMember(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// DeleteConversation removes a conversation and everything in it.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.conversations.IsMember(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	if err := h.conversations.Delete(c.Request.Context(), conversationID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete conversation"})
		return
	}

	h.audit.Emit(c.Request.Context(), "info", "conversation deleted", requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}

// GetMessages returns the conversation's messages as visible to the
// caller: capped, oldest first, minus anything deleted for them.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.conversations.IsMember(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	msgs, err := h.messages.ListForUser(c.Request.Context(), conversationID, userID, repositories.DefaultMessagePageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and bumps the conversation's recency. The
// realtime fan-out is driven by the client's socket intent, not by this
// endpoint.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		ConversationID int    `json:"conversation_id" binding:"required"`
		Content        string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.conversations.IsMember(c.Request.Context(), req.ConversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), req.ConversationID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead records the caller as having read every message in the
// conversation so far.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	conversationID, ok := paramInt(c, "conversation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.conversations.IsMember(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	if err := h.messages.MarkConversationRead(c.Request.Context(), conversationID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	c.Status(http.StatusNoContent)
}

// EditMessage rewrites a message's content, sender only and only while the
// edit window is open.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messages.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, repositories.ErrEditRejected):
			h.rejectEdit(c, messageID, userID)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not edit message"})
		}
		return
	}
	c.JSON(http.StatusOK, msg)
}

// rejectEdit turns a refused edit into the precise client error: a
// non-sender gets 403, the sender gets 400 for a frozen message or a
// closed window.
func (h *ChatHandler) rejectEdit(c *gin.Context, messageID, userID int) {
	msg, err := h.messages.Get(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not edit message"})
		return
	}
	switch {
	case msg.SenderID != userID:
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can edit"})
	case msg.DeletedForAll:
		c.JSON(http.StatusBadRequest, gin.H{"error": "message was deleted"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "edit window closed"})
	}
}

// DeleteMessage handles both delete modes: "me" hides the message for the
// caller only, "all" replaces it with the deleted placeholder for every
// member (sender only).
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramInt(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")

	switch req.Mode {
	case chatclient.DeleteModeMe:
		if err := h.messages.SoftDeleteForUser(c.Request.Context(), messageID, userID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrMessageNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": "could not delete message"})
			return
		}
	case chatclient.DeleteModeAll:
		msg, err := h.messages.Get(c.Request.Context(), messageID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrMessageNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": "message not found"})
			return
		}
		if msg.SenderID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete for all"})
			return
		}
		if err := h.messages.DeleteForAll(c.Request.Context(), messageID, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be \"me\" or \"all\""})
		return
	}

	c.Status(http.StatusNoContent)
}

func paramInt(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return value, true
}
