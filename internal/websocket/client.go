package websocket

import (
	"sync"
	"time"

	"erp-notification-be/pkg/push"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one push channel session. A user may hold several (tabs, devices).
type Client struct {
	UserID      uuid.UUID
	SessionID   string
	ConnectedAt time.Time

	hub  *Hub
	conn *websocket.Conn

	// Outbound frames, drained by writePump.
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		UserID:      userID,
		SessionID:   uuid.NewString(),
		ConnectedAt: time.Now(),
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, hub.sendBuffer),
	}
}

func (c *Client) fields(extra map[string]interface{}) map[string]interface{} {
	f := map[string]interface{}{"user_id": c.UserID, "session_id": c.SessionID}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

// enqueue never blocks; it reports false when the queue is full or closed.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reply(event string, payload interface{}) {
	msg, err := push.NewMessage(event, payload)
	if err != nil {
		return
	}
	if data, err := msg.Encode(); err == nil {
		c.enqueue(data)
	}
}

func (c *Client) extendDeadline(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// readPump dispatches client frames until the connection fails, then unregisters.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.extendDeadline("")
	c.conn.SetPongHandler(c.extendDeadline)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Client", "Unexpected close", c.fields(map[string]interface{}{"error": err.Error()}))
			}
			return
		}
		c.hub.handleInbound(c, frame)
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// writePump sends each queued frame as its own text message and keeps the
// connection alive with pings. A closed queue means the hub dropped us.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				c.hub.logger.Debug("Client", "Session closed", c.fields(map[string]interface{}{
					"duration": time.Since(c.ConnectedAt).String(),
				}))
				return
			}
			err = c.write(websocket.TextMessage, frame)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			c.hub.logger.Debug("Client", "Write failed", c.fields(map[string]interface{}{"error": err.Error()}))
			return
		}
	}
}
