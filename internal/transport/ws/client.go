package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"roulette-engine/internal/handler"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one WebSocket connection. playerID and roomID are guarded by the
// hub mutex.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	addr string

	playerID string
	roomID   string
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		addr: conn.RemoteAddr().String(),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// PlayerID implements handler.Session.
func (c *Client) PlayerID() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.playerID
}

// RoomID implements handler.Session.
func (c *Client) RoomID() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.roomID
}

// Bind implements handler.Session.
func (c *Client) Bind(playerID, roomID string) {
	c.hub.bind(c, playerID, roomID)
}

// Send implements handler.Session.
func (c *Client) Send(msg handler.Outbound) {
	if data, ok := encode(msg); ok {
		c.enqueue(data)
	}
}

// enqueue never blocks. A client that cannot keep up is dropped.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Warn().Str("remote", c.addr).Msg("Send buffer full, dropping client")
		c.close()
	}
}

// close signals the write pump to send a close frame and hang up.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump(d Dispatcher) {
	defer func() {
		c.hub.unregister(c)
		d.Disconnect(c)
		c.close()
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
				log.Debug().Err(err).Str("player_id", c.PlayerID()).Msg("Connection closed unexpectedly")
			}
			return
		}
		d.Dispatch(c.hub.ctx, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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
