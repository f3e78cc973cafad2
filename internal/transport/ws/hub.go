// Package ws serves the game protocol over WebSocket and delivers table
// events to connected players.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"roulette-engine/internal/config"
	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/handler"
)

// Dispatcher consumes client frames. *handler.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, s handler.Session, raw []byte)
	Disconnect(s handler.Session)
}

var (
	_ Dispatcher        = (*handler.Dispatcher)(nil)
	_ roulette.Notifier = (*Hub)(nil)
	_ handler.Session   = (*Client)(nil)
)

// Hub tracks live connections and the player bound to each. It implements
// roulette.Notifier so tables can push state to their players.
type Hub struct {
	ctx      context.Context
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	players map[string]*Client
}

// NewHub creates a Hub. ctx is handed to every dispatched request.
func NewHub(ctx context.Context, cfg *config.ServerConfig) *Hub {
	h := &Hub{
		ctx:     ctx,
		clients: make(map[*Client]struct{}),
		players: make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || cfg.IsOriginAllowed(origin)
		},
	}
	return h
}

// Handler returns the HTTP handler that upgrades connections and feeds their
// frames to d.
func (h *Hub) Handler(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to upgrade connection")
			return
		}

		c := newClient(h, conn)
		h.register(c)
		log.Debug().Str("remote", c.addr).Msg("Client connected")

		go c.writePump()
		c.readPump(d)
	})
}

// Broadcast implements roulette.Notifier.
func (h *Hub) Broadcast(roomID string, update roulette.GameStateUpdate) {
	data, ok := encode(handler.Outbound{Event: handler.EventGameStateUpdate, Data: update})
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.roomID == roomID && c.playerID != "" {
			c.enqueue(data)
		}
	}
}

// Notify implements roulette.Notifier.
func (h *Hub) Notify(roomID, playerID string, update roulette.GameStateUpdate) {
	h.mu.RLock()
	c, ok := h.players[playerID]
	if ok && c.roomID != roomID {
		ok = false
	}
	h.mu.RUnlock()
	if !ok {
		return
	}

	if data, ok := encode(handler.Outbound{Event: handler.EventGameStateUpdate, Data: update}); ok {
		c.enqueue(data)
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// bind attaches playerID to c. A newer connection for the same player takes
// over and the older one is closed without leaving the table.
func (h *Hub) bind(c *Client, playerID, roomID string) {
	h.mu.Lock()
	if c.playerID != "" && h.players[c.playerID] == c {
		delete(h.players, c.playerID)
	}
	var replaced *Client
	if playerID != "" {
		if old, ok := h.players[playerID]; ok && old != c {
			old.playerID, old.roomID = "", ""
			replaced = old
		}
		h.players[playerID] = c
	}
	c.playerID, c.roomID = playerID, roomID
	h.mu.Unlock()

	if replaced != nil {
		log.Info().Str("player_id", playerID).Msg("Connection replaced by a newer one")
		replaced.close()
	}
}

func encode(msg handler.Outbound) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", msg.Event).Msg("Failed to encode message")
		return nil, false
	}
	return data, true
}
