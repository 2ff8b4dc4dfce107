package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pings; anything larger is abuse
	maxMessageSize = 4 * 1024

	sendBuffer = 32
)

// Client is one websocket session of an authenticated account
type Client struct {
	ID          string
	AccountID   uuid.UUID
	ConnectedAt time.Time

	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func newClient(conn *websocket.Conn, hub *Hub, accountID uuid.UUID) *Client {
	return &Client{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		hub:         hub,
		send:        make(chan []byte, sendBuffer),
	}
}

// readPump reads client frames until the connection fails, then unregisters
func (c *Client) readPump() {
	defer func() {
		c.hub.enqueueUnregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.handle(c, data)
	}
}

// writePump drains the send buffer and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(msg *Message) bool {
	data, err := msg.encode()
	if err != nil {
		return false
	}
	return c.hub.sendTo(c, data)
}

func (c *Client) sendError(message string) {
	msg, err := NewMessage(TypeError, map[string]string{"message": message})
	if err != nil {
		return
	}
	c.enqueue(msg)
}
