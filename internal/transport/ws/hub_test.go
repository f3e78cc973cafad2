package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roulette-engine/internal/config"
	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/handler"
)

// bindingDispatcher binds the session to the player and room named in the
// frame and acks it.
type bindingDispatcher struct {
	mu           sync.Mutex
	disconnected []string
}

func (d *bindingDispatcher) Dispatch(_ context.Context, s handler.Session, raw []byte) {
	var req struct {
		Event string `json:"event"`
		ID    string `json:"id"`
		Data  struct {
			UserID string `json:"userId"`
			RoomID string `json:"roomId"`
		} `json:"data"`
	}
	_ = json.Unmarshal(raw, &req)
	s.Bind(req.Data.UserID, req.Data.RoomID)
	s.Send(handler.Outbound{Event: handler.EventAck, ID: req.ID, Data: handler.Ack{Success: true, RoomID: req.Data.RoomID}})
}

func (d *bindingDispatcher) Disconnect(s handler.Session) {
	d.mu.Lock()
	d.disconnected = append(d.disconnected, s.PlayerID())
	d.mu.Unlock()
}

func (d *bindingDispatcher) gone() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.disconnected...)
}

type frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
}

func startServer(t *testing.T, cfg *config.ServerConfig) (*Hub, *bindingDispatcher, string) {
	t.Helper()
	hub := NewHub(context.Background(), cfg)
	d := &bindingDispatcher{}
	srv := httptest.NewServer(hub.Handler(d))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, d, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, playerID, roomID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "join", "id": "j", "data": map[string]string{"userId": playerID, "roomId": roomID},
	}))
	f := read(t, conn)
	require.Equal(t, handler.EventAck, f.Event)
	require.Equal(t, "j", f.ID)
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHubDelivery(t *testing.T) {
	hub, _, url := startServer(t, &config.ServerConfig{})

	alice := dial(t, url)
	bob := dial(t, url)
	carol := dial(t, url)
	join(t, alice, "alice", "main")
	join(t, bob, "bob", "main")
	join(t, carol, "carol", "vip")

	n := 7
	hub.Notify("main", "alice", roulette.GameStateUpdate{State: roulette.PhasePayout, WinningNumber: &n})
	hub.Broadcast("main", roulette.GameStateUpdate{State: roulette.PhaseBetting})
	hub.Broadcast("vip", roulette.GameStateUpdate{State: roulette.PhaseSpinning})

	f := read(t, alice)
	assert.Equal(t, handler.EventGameStateUpdate, f.Event)
	assert.JSONEq(t, `{"state":"payout","winningNumber":7}`, string(f.Data))
	f = read(t, alice)
	assert.JSONEq(t, `{"state":"betting"}`, string(f.Data))

	f = read(t, bob)
	assert.JSONEq(t, `{"state":"betting"}`, string(f.Data), "bob gets only the room broadcast")

	f = read(t, carol)
	assert.JSONEq(t, `{"state":"spinning"}`, string(f.Data))
}

func TestHubNotifyWrongRoom(t *testing.T) {
	hub, _, url := startServer(t, &config.ServerConfig{})
	alice := dial(t, url)
	join(t, alice, "alice", "main")

	hub.Notify("vip", "alice", roulette.GameStateUpdate{State: roulette.PhasePayout})
	hub.Notify("main", "ghost", roulette.GameStateUpdate{State: roulette.PhasePayout})
	hub.Notify("main", "alice", roulette.GameStateUpdate{State: roulette.PhaseBetting})

	f := read(t, alice)
	assert.JSONEq(t, `{"state":"betting"}`, string(f.Data))
}

func TestHubDisconnect(t *testing.T) {
	hub, d, url := startServer(t, &config.ServerConfig{})
	alice := dial(t, url)
	join(t, alice, "alice", "main")
	require.Equal(t, 1, hub.Count())

	require.NoError(t, alice.Close())

	assert.Eventually(t, func() bool {
		gone := d.gone()
		return len(gone) == 1 && gone[0] == "alice" && hub.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubReplacesConnection(t *testing.T) {
	hub, d, url := startServer(t, &config.ServerConfig{})
	first := dial(t, url)
	join(t, first, "alice", "main")
	second := dial(t, url)
	join(t, second, "alice", "main")

	// The first connection is closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	hub.Notify("main", "alice", roulette.GameStateUpdate{State: roulette.PhaseBetting})
	f := read(t, second)
	assert.JSONEq(t, `{"state":"betting"}`, string(f.Data))

	assert.Eventually(t, func() bool {
		gone := d.gone()
		return len(gone) == 1 && gone[0] == "" && hub.Count() == 1
	}, 2*time.Second, 10*time.Millisecond, "replaced connection must not leave the table")
}

func TestHubOriginCheck(t *testing.T) {
	_, _, url := startServer(t, &config.ServerConfig{AllowedOrigins: []string{"https://casino.example"}})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://casino.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
