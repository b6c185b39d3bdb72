package ws

import (
	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
)

// Conn abstracts a websocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single authenticated websocket connection. One user may hold
// several clients at once (multiple devices); each joins rooms on its own.
type Client struct {
	UserID uuid.UUID
	Role   string
	Name   string
	Send   chan []byte

	conn  Conn
	rooms map[string]struct{} // conversation ids this client joined
}

// NewClient wraps an authenticated connection.
func NewClient(userID uuid.UUID, role, name string, conn Conn) *Client {
	return &Client{
		UserID: userID,
		Role:   role,
		Name:   name,
		Send:   make(chan []byte, 256),
		conn:   conn,
		rooms:  make(map[string]struct{}),
	}
}

// writePump drains the Send channel onto the connection. It exits when the
// channel closes (unregister) or a write fails.
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.Send {
		if err := c.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
