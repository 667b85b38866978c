package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	RoleDevice   = "device"
	RoleOperator = "operator"
)

var (
	pingInterval   = 20 * time.Second
	pongWait       = 60 * time.Second
	writeTimeout   = 10 * time.Second
	maxMessageSize = int64(8 << 20) // reports may carry a base64 image
)

type heldFrame struct {
	logID int64
	data  []byte
}

// Client is one channel connection. Frames queued on Send are written by
// WritePump; Send is closed by the Manager when the client is dropped.
type Client struct {
	ID       string
	Role     string
	DeviceID string
	Conn     *websocket.Conn
	Send     chan []byte

	// guarded by Manager.mu
	replaying bool
	held      []heldFrame
	closed    bool
}

func NewClient(conn *websocket.Conn, role, deviceID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:       uuid.New().String(),
		Role:     role,
		DeviceID: deviceID,
		Conn:     conn,
		Send:     make(chan []byte, buffer),
	}
}

// ReadPump reads frames until the connection fails, passing each to
// handle. onPong runs on every pong. The connection is closed on return.
func (c *Client) ReadPump(log *zap.Logger, handle func([]byte), onPong func()) {
	defer c.Conn.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("channel read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(message)
	}
}

// WritePump writes queued frames, one per websocket message, and pings
// the peer periodically.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
