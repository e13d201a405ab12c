package websocket

import (
	"bytes"
	"fmt"
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

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	// Send buffer size
	sendBufferSize = 256
)

// Client is one WebSocket session. Its id is the session identity used as
// the advisory lock holder, so a dropped session releases exactly the
// locks it took.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// NewClient creates a session for an authenticated user
func NewClient(userID string, hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With(
			zap.String("user_id", userID),
			zap.String("session_id", id),
		),
	}
}

// Start registers the session and begins its read and write pumps
func (c *Client) Start() {
	c.hub.register <- c

	go c.writePump()
	go c.readPump()

	c.sendConnectionEstablished()
}

// ID returns the session id
func (c *Client) ID() string {
	return c.id
}

// UserID returns the owning user id
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// readPump drains incoming frames until the connection drops, then
// unregisters the session
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.closeConn()
		c.logger.Debug("read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleTextMessage(message)
		case websocket.BinaryMessage:
			c.logger.Warn("binary messages not supported")
		}
	}
}

// writePump writes queued frames and periodic pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
		c.logger.Debug("write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("failed to write message", zap.Error(err))
				return
			}

			// Flush whatever queued up behind the first frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.logger.Error("failed to write queued message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleTextMessage(message []byte) {
	message = bytes.TrimSpace(message)

	if string(message) == `{"type":"pong"}` {
		return
	}

	c.logger.Debug("received message from client", zap.ByteString("message", message))
}

func (c *Client) sendConnectionEstablished() {
	message := fmt.Sprintf(
		`{"type":"connection.established","timestamp":%d,"data":{"sessionId":%q,"userId":%q}}`,
		time.Now().Unix(), c.id, c.userID)

	select {
	case c.send <- []byte(message):
	default:
		c.logger.Error("failed to send connection established message")
	}
}
