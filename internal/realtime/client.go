package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one realtime connection of an authenticated user.
type Client struct {
	ID     string
	UserID utils.SixID

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// NewClient wraps an upgraded websocket connection. conn may be nil for
// connections that are only read through Frames, as in tests.
func NewClient(hub *Hub, userID utils.SixID, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
}

// Frames exposes the outbound queue.
func (c *Client) Frames() <-chan []byte {
	return c.send
}

// enqueue queues a frame without blocking. Frames for a full or closed queue are dropped.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.hub.logger.Warn("dropping frame for slow connection",
			zap.String("conn", c.ID), zap.Stringer("user", c.UserID))
		return false
	}
}

// Emit sends one event to this connection only.
func (c *Client) Emit(event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	c.enqueue(frame)
	return nil
}

// EmitError sends an error event to this connection only.
func (c *Client) EmitError(message string) {
	_ = c.Emit(EventError, ErrorPayload{Message: message})
}

func (c *Client) joined(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) left(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// InRoom reports whether the connection has joined room.
func (c *Client) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Client) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// close stops the outbound queue; the write pump then closes the socket.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads client frames and dispatches them until the connection fails.
// It unregisters the client when it returns.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}()
	if c.conn == nil {
		return
	}

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("realtime read failed", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.EmitError("malformed frame")
			continue
		}
		c.hub.Dispatch(ctx, c, env)
	}
}

// WritePump writes queued frames and keepalive pings to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
