package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client-to-server frames; clients only send control frames.
	maxMessageSize = 4096

	sendBuffer = 64
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is a single websocket connection attached to a hub.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
}

// Attach registers conn with the hub. It fails with ErrClosed once the
// hub has stopped.
func (h *Hub) Attach(conn Conn) (*Client, error) {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	select {
	case h.register <- c:
		return c, nil
	case <-h.done:
		return nil, ErrClosed
	}
}

// Run starts the write pump and blocks in the read pump until the
// connection closes. It returns only after the write pump has exited, so
// the handler may release conn as soon as Run returns.
func (c *Client) Run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	<-done
}

// readPump detects disconnection and handles pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine that writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
