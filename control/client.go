package control

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"rayz-device/config"
)

// wsClient owns a single UI connection. All socket writes happen on its
// write pump so the networking stack is never blocked by a caller.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	handle string
	done   chan struct{}
	dead   atomic.Bool // set when either pump hits a transport error
}

func newWSClient(conn *websocket.Conn, handle string) *wsClient {
	return &wsClient{
		conn:   conn,
		send:   make(chan []byte, config.CLIENT_SEND_BUFFER),
		handle: handle,
		done:   make(chan struct{}),
	}
}

// readPump consumes inbound frames until the connection dies, then
// unregisters the client.
func (c *wsClient) readPump(s *Server) {
	defer func() {
		c.dead.Store(true)
		s.RemoveConnection(c.handle)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.WS_MAX_FRAME_SIZE)
	c.conn.SetReadDeadline(time.Now().Add(config.PONG_WAIT))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PONG_WAIT))
		s.touchActivity(c.handle)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("control: client %s: unexpected close: %v", c.handle, err)
			}
			break
		}
		s.touchActivity(c.handle)
		s.handleMessage(c, message)
	}
}

// writePump drains the send channel and keeps the connection alive with
// periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(config.PING_INTERVAL)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WRITE_WAIT))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.dead.Store(true)
				log.Printf("control: client %s: write error: %v", c.handle, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.dead.Store(true)
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
