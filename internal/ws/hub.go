package ws

import (
	"context"
	"log/slog"
	"time"

	"cmc-connect/internal/identity"
	"cmc-connect/internal/models"
	"cmc-connect/internal/notify"
	"cmc-connect/internal/observability"
	"cmc-connect/internal/presence"
)

const notifyTimeout = 10 * time.Second

// Hub is the fan-out engine: it forwards client intents to the live
// connections of their receivers and tracks who is online.
type Hub struct {
	registry  *presence.Registry
	directory *identity.Directory
	notifier  notify.Notifier
}

func NewHub(registry *presence.Registry, directory *identity.Directory, notifier notify.Notifier) *Hub {
	return &Hub{
		registry:  registry,
		directory: directory,
		notifier:  notifier,
	}
}

// Connect registers a new connection. When the user was previously offline
// every connected client gets an online delta; the new connection itself
// receives a one-off snapshot of everyone currently online.
func (h *Hub) Connect(c *Client) {
	if h.registry.Register(c.UserID, c) {
		h.broadcast(models.ServerEvent{
			Type:   models.EventPresence,
			UserID: c.UserID,
			Online: true,
		})
	}

	c.TrySend(models.ServerEvent{
		Type:  models.EventPresenceState,
		Users: h.registry.Online(),
	})
}

// Disconnect drops a connection. An offline delta goes out only when the
// user has no other connection left.
func (h *Hub) Disconnect(c *Client) {
	userID, wasLast, found := h.registry.Unregister(c)
	if !found {
		return
	}
	if wasLast {
		h.broadcast(models.ServerEvent{
			Type:   models.EventPresence,
			UserID: userID,
			Online: false,
		})
	}
}

// Dispatch routes one client intent. Unknown types are dropped; a
// connection is never torn down over a bad event.
func (h *Hub) Dispatch(senderID int, ev models.ClientEvent) {
	observability.IncWSEvent(string(ev.Type))

	switch ev.Type {
	case models.EventSend:
		h.handleSend(senderID, ev)
	case models.EventEdit:
		h.fanOut(ev.Receivers, models.ServerEvent{
			Type:           models.EventMessageEdited,
			ConversationID: ev.ConversationID,
			MessageID:      ev.MessageID,
			Text:           ev.Text,
		})
	case models.EventDelete:
		h.fanOut(ev.Receivers, models.ServerEvent{
			Type:           models.EventMessageDeleted,
			ConversationID: ev.ConversationID,
			MessageID:      ev.MessageID,
		})
	case models.EventMarkRead:
		h.fanOut(ev.Receivers, models.ServerEvent{
			Type:           models.EventMessageRead,
			ConversationID: ev.ConversationID,
			ReaderID:       senderID,
		})
	default:
		slog.Debug("dropping event of unknown type", "type", ev.Type, "sender_id", senderID)
	}
}

func (h *Hub) handleSend(senderID int, ev models.ClientEvent) {
	out := models.ServerEvent{
		Type:           models.EventMessage,
		ConversationID: ev.ConversationID,
		MessageID:      ev.MessageID,
		SenderID:       senderID,
		Text:           ev.Text,
		CreatedAt:      time.Now(),
	}

	receivers := make([]int, 0, len(ev.Receivers))
	for _, receiverID := range ev.Receivers {
		if receiverID == senderID {
			continue
		}
		receivers = append(receivers, receiverID)
		if client := h.registry.Lookup(receiverID); client != nil {
			client.TrySend(out)
		}
	}

	if len(receivers) > 0 {
		go h.push(senderID, receivers, ev.Text)
	}
}

// push notifies every receiver over web-push, live socket or not; a phone
// with a closed tab still wants the banner. Failures never surface to the
// sender.
func (h *Hub) push(senderID int, receivers []int, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	senderName := h.directory.Lookup(ctx, senderID).DisplayName
	for _, receiverID := range receivers {
		h.notifier.NotifyNewMessage(ctx, receiverID, senderName, text)
	}
}

func (h *Hub) fanOut(receivers []int, ev models.ServerEvent) {
	for _, receiverID := range receivers {
		if client := h.registry.Lookup(receiverID); client != nil {
			client.TrySend(ev)
		}
	}
}

func (h *Hub) broadcast(ev models.ServerEvent) {
	for _, client := range h.registry.Clients() {
		client.TrySend(ev)
	}
}
