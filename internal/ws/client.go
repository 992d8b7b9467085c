package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cmc-connect/internal/models"
	"cmc-connect/internal/observability"
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
)

// wsConn is the subset of *websocket.Conn the client uses; tests substitute
// an in-memory implementation.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client owns one websocket connection. All writes funnel through a
// buffered channel into a single writer goroutine; a full buffer drops the
// frame rather than blocking the fan-out path.
type Client struct {
	UserID int
	ConnID string

	conn      wsConn
	send      chan models.ServerEvent
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an established websocket connection for a user.
func NewClient(userID int, connID string, conn wsConn) *Client {
	return &Client{
		UserID: userID,
		ConnID: connID,
		conn:   conn,
		send:   make(chan models.ServerEvent, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// TrySend queues an event for delivery. It never blocks; false means the
// frame was dropped.
func (c *Client) TrySend(ev models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		observability.IncWSDropped()
		return false
	}
}

// WritePump drains the send channel onto the socket. It exits when the
// client is closed or a write fails.
func (c *Client) WritePump() {
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump reads client intents and hands them to the dispatcher. A frame
// that fails to decode is dropped; only transport errors end the loop.
func (c *Client) ReadPump(dispatch func(models.ClientEvent)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("dropping malformed client event", "conn_id", c.ConnID, "error", err)
			observability.IncWSEvent("malformed")
			continue
		}
		dispatch(ev)
	}
}

// Close tears the connection down once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
