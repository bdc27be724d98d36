package livestream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWSWriteTimeout = 10 * time.Second
	defaultWSPongTimeout  = 60 * time.Second
	defaultWSPingInterval = 25 * time.Second
	defaultSendBuffer     = 1024
	maxRequestSize        = 4096
)

// client is one websocket viewer. Only writePump writes to the connection,
// including the close frame, so stopping a client never waits on a write.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, sendBuffer int) *client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &client{
		hub:    hub,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue hands msg to the writer without blocking. It returns false when
// the buffer is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// stop asks writePump to send a close frame and hang up.
func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// drop hangs up at once. A write blocked on a slow peer fails immediately.
func (c *client) drop() {
	c.stop()
	_ = c.conn.Close()
}

func (c *client) write(msgType int, msg []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWSWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(msgType, msg)
}

func (c *client) writePump() {
	ticker := time.NewTicker(defaultWSPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.hub.log.Debug("Live client write failed", "remote", c.remote, "err", err)
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-c.done:
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxRequestSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(defaultWSPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(defaultWSPongTimeout))
	})

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.log.Debug("Live client read failed", "remote", c.remote, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(defaultWSPongTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			c.hub.log.Debug("Invalid live client request", "remote", c.remote, "err", fmt.Errorf("decode: %w", err))
			continue
		}
		c.hub.handleRequest(c, req)
	}
}
