// Package chatclient implements the client half of the chat protocol: an
// in-memory view of conversations, messages, unread counters and previews
// that is advanced by server events and by local user intents.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cmc-connect/internal/models"
)

// Delete modes accepted by DeleteMessage.
const (
	DeleteModeMe  = "me"
	DeleteModeAll = "all"
)

var (
	// ErrEditWindowClosed means the message is older than the edit cutoff.
	ErrEditWindowClosed = errors.New("edit window closed")
	// ErrMessageFrozen means the message was deleted for everyone and can
	// no longer change.
	ErrMessageFrozen = errors.New("message deleted for everyone")
	// ErrNotSender means the caller does not own the message.
	ErrNotSender = errors.New("not the message sender")
	// ErrNoOpenConversation means the intent needs an open conversation.
	ErrNoOpenConversation = errors.New("no open conversation")
)

// API is the slice of the REST surface the session drives.
type API interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	Conversation(ctx context.Context, conversationID int) (models.Conversation, error)
	Messages(ctx context.Context, conversationID int) ([]models.Message, error)
	CreateMessage(ctx context.Context, conversationID int, text string) (models.Message, error)
	EditMessage(ctx context.Context, messageID int, text string) error
	DeleteMessage(ctx context.Context, messageID int, mode string) error
	MarkRead(ctx context.Context, conversationID int) error
	CreateDirect(ctx context.Context, otherID int) (models.Conversation, error)
}

// Emitter sends chat intents over the realtime connection. Delivery is
// best-effort; the store is already consistent by the time anything is
// emitted.
type Emitter interface {
	Emit(ev models.ClientEvent)
}

// Session is one user's chat state. All methods are safe for concurrent
// use; server events and local intents serialize on one mutex.
type Session struct {
	mu      sync.Mutex
	userID  int
	api     API
	emitter Emitter
	now     func() time.Time

	conversations []models.Conversation
	openID        int
	open          []models.Message
	unread        map[int]int
	previews      map[int]string
	online        map[int]bool
}

// NewSession constructs a Session for the given user.
func NewSession(userID int, api API, emitter Emitter) *Session {
	return &Session{
		userID:   userID,
		api:      api,
		emitter:  emitter,
		now:      time.Now,
		unread:   make(map[int]int),
		previews: make(map[int]string),
		online:   make(map[int]bool),
	}
}

// Load fetches the conversation list, most recently active first.
func (s *Session) Load(ctx context.Context) error {
	conversations, err := s.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = conversations
	return nil
}

// Open switches to a conversation: loads its visible messages, clears the
// unread counter and marks everything read, both in the store and towards
// the other members.
func (s *Session) Open(ctx context.Context, conversationID int) error {
	messages, err := s.api.Messages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.openID = conversationID
	s.open = messages
	s.unread[conversationID] = 0

	s.emitter.Emit(models.ClientEvent{
		Type:           models.EventMarkRead,
		ConversationID: conversationID,
		Receivers:      s.receiversLocked(conversationID),
	})
	return nil
}

// Close leaves the open conversation.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openID = 0
	s.open = nil
}

// HandleEvent advances the local state by one server event.
func (s *Session) HandleEvent(ctx context.Context, ev models.ServerEvent) {
	switch ev.Type {
	case models.EventMessage:
		s.handleMessage(ctx, ev)
	case models.EventMessageEdited:
		s.handleEdited(ev)
	case models.EventMessageDeleted:
		s.handleDeleted(ev)
	case models.EventMessageRead:
		s.handleRead(ev)
	case models.EventPresence:
		s.mu.Lock()
		s.online[ev.UserID] = ev.Online
		s.mu.Unlock()
	case models.EventPresenceState:
		s.mu.Lock()
		s.online = make(map[int]bool, len(ev.Users))
		for _, id := range ev.Users {
			s.online[id] = true
		}
		s.mu.Unlock()
	}
}

func (s *Session) handleMessage(ctx context.Context, ev models.ServerEvent) {
	s.mu.Lock()

	if !s.knownLocked(ev.ConversationID) {
		s.mu.Unlock()
		s.adoptConversation(ctx, ev)
		return
	}

	s.previews[ev.ConversationID] = ev.Text
	s.moveToFrontLocked(ev.ConversationID)

	if ev.ConversationID == s.openID {
		s.open = append(s.open, models.Message{
			ID:             ev.MessageID,
			ConversationID: ev.ConversationID,
			SenderID:       ev.SenderID,
			Content:        ev.Text,
			CreatedAt:      ev.CreatedAt,
		})
		s.emitter.Emit(models.ClientEvent{
			Type:           models.EventMarkRead,
			ConversationID: ev.ConversationID,
			Receivers:      s.receiversLocked(ev.ConversationID),
		})
		s.mu.Unlock()

		// The store has to agree that the message was seen even though
		// the counter never moved. A miss here only delays the receipt
		// until the next Open.
		if err := s.api.MarkRead(ctx, ev.ConversationID); err != nil {
			slog.Debug("covering mark-read failed", "conversation_id", ev.ConversationID, "error", err)
		}
		return
	}

	s.unread[ev.ConversationID]++
	s.mu.Unlock()
}

// adoptConversation handles the first message of a conversation this
// session has never seen, typically a brand-new chat started by the peer.
func (s *Session) adoptConversation(ctx context.Context, ev models.ServerEvent) {
	conversation, err := s.api.Conversation(ctx, ev.ConversationID)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.knownLocked(conversation.ID) {
		return
	}
	s.conversations = append([]models.Conversation{conversation}, s.conversations...)
	s.previews[conversation.ID] = ev.Text
	s.unread[conversation.ID] = 1
}

func (s *Session) handleEdited(ev models.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.previews[ev.ConversationID] = ev.Text
	if ev.ConversationID != s.openID {
		return
	}
	for i := range s.open {
		if s.open[i].ID == ev.MessageID {
			s.open[i].Content = ev.Text
			s.open[i].IsEdited = true
			return
		}
	}
}

func (s *Session) handleDeleted(ev models.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.previews[ev.ConversationID] = models.DeletedPlaceholder
	if ev.ConversationID != s.openID {
		return
	}
	for i := range s.open {
		if s.open[i].ID == ev.MessageID {
			s.open[i].Content = models.DeletedPlaceholder
			s.open[i].DeletedForAll = true
			s.open[i].IsEdited = false
			return
		}
	}
}

func (s *Session) handleRead(ev models.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ConversationID != s.openID {
		return
	}
	for i := range s.open {
		if s.open[i].SenderID != s.userID {
			continue
		}
		if containsInt(s.open[i].ReadBy, ev.ReaderID) {
			continue
		}
		s.open[i].ReadBy = append(s.open[i].ReadBy, ev.ReaderID)
	}
}

// Send persists a message in the open conversation, then applies it
// locally and emits the send intent. A persist failure leaves the local
// state untouched.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	s.mu.Lock()
	conversationID := s.openID
	s.mu.Unlock()
	if conversationID == 0 {
		return models.Message{}, ErrNoOpenConversation
	}

	message, err := s.api.CreateMessage(ctx, conversationID, text)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == conversationID {
		s.open = append(s.open, message)
	}
	s.previews[conversationID] = message.Content
	s.moveToFrontLocked(conversationID)

	s.emitter.Emit(models.ClientEvent{
		Type:           models.EventSend,
		ConversationID: conversationID,
		MessageID:      message.ID,
		Text:           message.Content,
		Receivers:      s.receiversLocked(conversationID),
	})
	return message, nil
}

// Edit rewrites one of the caller's own recent messages. The cutoff is
// enforced locally before the store is asked, so a stale UI fails fast.
func (s *Session) Edit(ctx context.Context, messageID int, text string) error {
	s.mu.Lock()
	message, ok := s.openMessageLocked(messageID)
	if !ok {
		s.mu.Unlock()
		return ErrNoOpenConversation
	}
	if message.SenderID != s.userID {
		s.mu.Unlock()
		return ErrNotSender
	}
	if message.DeletedForAll {
		s.mu.Unlock()
		return ErrMessageFrozen
	}
	if !message.Editable(s.userID, s.now()) {
		s.mu.Unlock()
		return ErrEditWindowClosed
	}
	conversationID := message.ConversationID
	s.mu.Unlock()

	if err := s.api.EditMessage(ctx, messageID, text); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.open {
		if s.open[i].ID == messageID {
			s.open[i].Content = text
			s.open[i].IsEdited = true
		}
	}
	s.previews[conversationID] = text

	s.emitter.Emit(models.ClientEvent{
		Type:           models.EventEdit,
		ConversationID: conversationID,
		MessageID:      messageID,
		Text:           text,
		Receivers:      s.receiversLocked(conversationID),
	})
	return nil
}

// DeleteForMe hides a message from this user only. Nothing is emitted;
// other members keep seeing the message.
func (s *Session) DeleteForMe(ctx context.Context, messageID int) error {
	if err := s.api.DeleteMessage(ctx, messageID, DeleteModeMe); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.open {
		if s.open[i].ID == messageID {
			s.open = append(s.open[:i], s.open[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteForAll replaces one of the caller's own messages with the deleted
// placeholder for every member.
func (s *Session) DeleteForAll(ctx context.Context, messageID int) error {
	s.mu.Lock()
	message, ok := s.openMessageLocked(messageID)
	if !ok {
		s.mu.Unlock()
		return ErrNoOpenConversation
	}
	if message.SenderID != s.userID {
		s.mu.Unlock()
		return ErrNotSender
	}
	conversationID := message.ConversationID
	s.mu.Unlock()

	if err := s.api.DeleteMessage(ctx, messageID, DeleteModeAll); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.open {
		if s.open[i].ID == messageID {
			s.open[i].Content = models.DeletedPlaceholder
			s.open[i].DeletedForAll = true
			s.open[i].IsEdited = false
		}
	}
	s.previews[conversationID] = models.DeletedPlaceholder

	s.emitter.Emit(models.ClientEvent{
		Type:           models.EventDelete,
		ConversationID: conversationID,
		MessageID:      messageID,
		Receivers:      s.receiversLocked(conversationID),
	})
	return nil
}

// StartDirect returns the 1:1 conversation with the other user, reusing a
// locally known one before asking the server. The server-side create is
// idempotent, so racing sessions converge on the same conversation.
func (s *Session) StartDirect(ctx context.Context, otherID int) (models.Conversation, error) {
	s.mu.Lock()
	for _, conversation := range s.conversations {
		if conversation.IsGroup {
			continue
		}
		if len(conversation.Members) == 2 && conversation.HasMember(s.userID) && conversation.HasMember(otherID) {
			s.mu.Unlock()
			return conversation, nil
		}
	}
	s.mu.Unlock()

	conversation, err := s.api.CreateDirect(ctx, otherID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to start conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownLocked(conversation.ID) {
		s.conversations = append([]models.Conversation{conversation}, s.conversations...)
	}
	return conversation, nil
}

// Conversations returns the ordered conversation list.
func (s *Session) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Messages returns the open conversation's messages.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.open))
	copy(out, s.open)
	return out
}

// Unread returns the unread counter for a conversation.
func (s *Session) Unread(conversationID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID]
}

// Preview returns the latest-message preview for a conversation.
func (s *Session) Preview(conversationID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previews[conversationID]
}

// Online reports whether a user currently has a live connection, per the
// last presence information received.
func (s *Session) Online(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

func (s *Session) knownLocked(conversationID int) bool {
	for _, c := range s.conversations {
		if c.ID == conversationID {
			return true
		}
	}
	return false
}

func (s *Session) moveToFrontLocked(conversationID int) {
	for i, c := range s.conversations {
		if c.ID == conversationID {
			if i > 0 {
				s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
				s.conversations = append([]models.Conversation{c}, s.conversations...)
			}
			return
		}
	}
}

func (s *Session) receiversLocked(conversationID int) []int {
	for _, c := range s.conversations {
		if c.ID == conversationID {
			return c.OtherMembers(s.userID)
		}
	}
	return nil
}

func (s *Session) openMessageLocked(messageID int) (models.Message, bool) {
	for _, m := range s.open {
		if m.ID == messageID {
			return m, true
		}
	}
	return models.Message{}, false
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
