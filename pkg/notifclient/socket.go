package notifclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"erp-notification-be/pkg/push"

	"github.com/fasthttp/websocket"
)

const (
	socketWriteWait = 10 * time.Second
	// Server pings every 54s; allow one missed ping before treating the link as dead.
	socketReadWait = 2 * time.Minute
)

// Conn is one live push channel connection.
type Conn interface {
	// Receive blocks until the next frame or until the connection drops.
	Receive() (push.Message, error)
	Send(msg push.Message) error
	Close() error
}

// Dialer opens push channel connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer connects to the server's /ws endpoint.
type WSDialer struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

var _ Dialer = (*WSDialer)(nil)

// NewWSDialer targets a ws:// or wss:// URL such as ws://localhost:3000/api/ws.
func NewWSDialer(wsURL, token string) *WSDialer {
	return &WSDialer{
		url:   wsURL,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	target, err := url.Parse(d.url)
	if err != nil {
		return nil, newError(KindValidation, "invalid push channel url", err)
	}
	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}

	conn, resp, err := d.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return nil, newError(kindForStatus(resp.StatusCode), fmt.Sprintf("handshake rejected with status %d", resp.StatusCode), err)
		}
		return nil, newError(KindNetwork, "push channel unreachable", err)
	}

	c := &wsConn{conn: conn}
	conn.SetReadDeadline(time.Now().Add(socketReadWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(socketReadWait))
		c.mu.Lock()
		defer c.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(socketWriteWait))
	})
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) Receive() (push.Message, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return push.Message{}, newError(KindNetwork, "push channel dropped", err)
		}
		c.conn.SetReadDeadline(time.Now().Add(socketReadWait))
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := push.Decode(data)
		if err != nil {
			// One bad frame does not end the session
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) Send(msg push.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return newError(KindNetwork, "push channel write failed", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
