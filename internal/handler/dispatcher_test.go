package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roulette-engine/internal/game"
	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/model"
	"roulette-engine/internal/service"
)

type fakeSession struct {
	mu     sync.Mutex
	player string
	room   string
	sent   []Outbound
}

func (s *fakeSession) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *fakeSession) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *fakeSession) Bind(playerID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player, s.room = playerID, roomID
}

func (s *fakeSession) Send(msg Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
}

func (s *fakeSession) events(name string) []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Outbound
	for _, m := range s.sent {
		if m.Event == name {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSession) lastAck(t *testing.T) (string, Ack) {
	t.Helper()
	acks := s.events(EventAck)
	require.NotEmpty(t, acks, "no ack sent")
	last := acks[len(acks)-1]
	ack, ok := last.Data.(Ack)
	require.True(t, ok, "ack payload has type %T", last.Data)
	return last.ID, ack
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock    *manualClock
	store    *service.MemoryStore
	registry *game.Registry
	d        *Dispatcher
}

func newFixture(t *testing.T, maxPlayers int) *fixture {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := service.NewMemoryStore()
	wallet := service.NewWalletService(store, store, 10000, 1_000_000, time.Second)
	ranking := service.NewRankingService(store, store, time.UTC)
	history := service.NewHistoryService(store, store)

	cfg := roulette.Config{
		BettingDuration:   30 * time.Second,
		SpinDuration:      10 * time.Second,
		PayoutDuration:    5 * time.Second,
		MaxSettleAttempts: 3,
		PersistTimeout:    time.Second,
		HistorySize:       5,
	}
	factory := func(roomID string, onRelease func(roomID, playerID string)) game.Table {
		return roulette.NewTable(roomID, cfg,
			roulette.WithClock(clock),
			roulette.WithDrawer(roulette.DrawerFunc(func() (int, error) { return 19, nil })),
			roulette.WithSettler(wallet),
			roulette.WithReleaseHook(onRelease),
		)
	}
	registry := game.NewRegistry(context.Background(), factory, maxPlayers)
	t.Cleanup(func() { _ = registry.Close() })

	return &fixture{
		clock:    clock,
		store:    store,
		registry: registry,
		d:        NewDispatcher(registry, wallet, ranking, history, "main", time.Second),
	}
}

func (f *fixture) send(t *testing.T, s *fakeSession, event, id string, data any) Ack {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "id": id, "data": data})
	require.NoError(t, err)
	f.d.Dispatch(context.Background(), s, raw)
	gotID, ack := s.lastAck(t)
	assert.Equal(t, id, gotID)
	return ack
}

func (f *fixture) join(t *testing.T, playerID string, data map[string]any) *fakeSession {
	t.Helper()
	s := &fakeSession{}
	if data == nil {
		data = map[string]any{}
	}
	data["userId"] = playerID
	ack := f.send(t, s, EventJoin, "join-"+playerID, data)
	require.True(t, ack.Success, ack.Message)
	return s
}

func TestJoin(t *testing.T) {
	t.Run("seats player in default room", func(t *testing.T) {
		f := newFixture(t, 0)
		s := &fakeSession{}

		ack := f.send(t, s, EventJoin, "1", map[string]any{"userId": "alice", "userName": "Alice"})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, "main", ack.RoomID)
		assert.Equal(t, "alice", s.PlayerID())
		assert.Equal(t, "main", s.RoomID())

		inits := s.events(EventPlayerInitialized)
		require.Len(t, inits, 1)
		assert.Equal(t, PlayerInitialized{Balance: 10000, PlayerID: "alice"}, inits[0].Data)

		states := s.events(EventGameStateUpdate)
		require.Len(t, states, 1)
		update := states[0].Data.(roulette.GameStateUpdate)
		assert.Equal(t, roulette.PhaseBetting, update.State)
		require.NotNil(t, update.Time)
		assert.Equal(t, 30, *update.Time)
	})

	t.Run("requested balance seeds a new account", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", map[string]any{"balance": 500, "roomId": "vip"})

		assert.Equal(t, "vip", s.RoomID())
		inits := s.events(EventPlayerInitialized)
		require.Len(t, inits, 1)
		assert.Equal(t, int64(500), inits[0].Data.(PlayerInitialized).Balance)
	})

	t.Run("dashed alias", func(t *testing.T) {
		f := newFixture(t, 0)
		s := &fakeSession{}
		ack := f.send(t, s, "single-join", "1", map[string]any{"userId": "alice"})
		assert.True(t, ack.Success, ack.Message)
	})

	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"missing user", map[string]any{"userName": "x"}, "userId is required"},
		{"negative balance", map[string]any{"userId": "bob", "balance": -5}, "invalid starting balance"},
		{"balance above table maximum", map[string]any{"userId": "bob", "balance": int64(4611686018427387903)}, "invalid starting balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			s := &fakeSession{}
			ack := f.send(t, s, EventJoin, "1", tt.data)
			assert.False(t, ack.Success)
			assert.Equal(t, tt.want, ack.Message)
			assert.Empty(t, s.PlayerID())
		})
	}

	t.Run("room full", func(t *testing.T) {
		f := newFixture(t, 1)
		f.join(t, "alice", nil)

		s := &fakeSession{}
		ack := f.send(t, s, EventJoin, "1", map[string]any{"userId": "bob"})
		assert.False(t, ack.Success)
		assert.Equal(t, game.ErrRoomFull.Error(), ack.Message)
	})

	t.Run("connection cannot switch player", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", nil)

		ack := f.send(t, s, EventJoin, "2", map[string]any{"userId": "bob"})
		assert.False(t, ack.Success)
		assert.Equal(t, errRebind.Error(), ack.Message)
	})
}

func TestDispatchFrames(t *testing.T) {
	f := newFixture(t, 0)
	s := &fakeSession{}

	f.d.Dispatch(context.Background(), s, []byte("{not json"))
	_, ack := s.lastAck(t)
	assert.False(t, ack.Success)
	assert.Equal(t, errMalformed.Error(), ack.Message)

	ack = f.send(t, s, "spin", "7", nil)
	assert.False(t, ack.Success)
	assert.Equal(t, errUnknownEvent.Error(), ack.Message)

	raw := []byte(`{"event":"placeBet","id":"8","data":"oops"}`)
	f.d.Dispatch(context.Background(), s, raw)
	_, ack = s.lastAck(t)
	assert.Equal(t, errMalformed.Error(), ack.Message)
}

func TestBetEvents(t *testing.T) {
	t.Run("requires join", func(t *testing.T) {
		f := newFixture(t, 0)
		for _, ev := range []string{EventPlaceBet, EventClearBets, EventUndoBet, EventRepeatBet, EventDoubleBet, EventLeaveRoom} {
			ack := f.send(t, &fakeSession{}, ev, "1", map[string]any{"betKey": "red", "amount": 10})
			assert.False(t, ack.Success, ev)
			assert.Equal(t, errNotJoined.Error(), ack.Message, ev)
		}
	})

	t.Run("place normalizes labels", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", map[string]any{"balance": 1000})

		ack := f.send(t, s, EventPlaceBet, "1", map[string]any{"roomId": "main", "betKey": "Rojo", "amount": 100})
		require.True(t, ack.Success, ack.Message)
		require.NotNil(t, ack.Player)
		assert.Equal(t, int64(900), ack.Player.Balance)
		assert.Equal(t, map[string]int64{"even_money_red": 100}, ack.Player.Bets)

		ack = f.send(t, s, EventPlaceBet, "2", map[string]any{"betKey": "18 / 17", "amount": 50})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, int64(50), ack.Player.Bets["split_17_18"])
	})

	placeTests := []struct {
		name    string
		data    map[string]any
		wantMsg string
	}{
		{"unknown label", map[string]any{"betKey": "lucky seven", "amount": 10}, roulette.ErrInvalidBetKey.Error()},
		{"zero amount", map[string]any{"betKey": "red", "amount": 0}, roulette.ErrInvalidAmount.Error()},
		{"over balance", map[string]any{"betKey": "red", "amount": 5000}, roulette.ErrInsufficientBalance.Error()},
		{"other room", map[string]any{"roomId": "vip", "betKey": "red", "amount": 10}, errWrongRoom.Error()},
	}
	for _, tt := range placeTests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			s := f.join(t, "alice", map[string]any{"balance": 1000})
			ack := f.send(t, s, EventPlaceBet, "1", tt.data)
			assert.False(t, ack.Success)
			assert.Equal(t, tt.wantMsg, ack.Message)
		})
	}

	t.Run("column and dozen conflict", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", map[string]any{"balance": 1000})
		require.True(t, f.send(t, s, EventPlaceBet, "1", map[string]any{"betKey": "col1", "amount": 10}).Success)

		ack := f.send(t, s, EventPlaceBet, "2", map[string]any{"betKey": "Dozen 1", "amount": 10})
		assert.False(t, ack.Success)
		assert.Equal(t, roulette.ErrRuleConflict.Error(), ack.Message)
	})

	t.Run("undo clear double", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", map[string]any{"balance": 1000})
		f.send(t, s, EventPlaceBet, "1", map[string]any{"betKey": "red", "amount": 100})
		f.send(t, s, EventPlaceBet, "2", map[string]any{"betKey": "7", "amount": 10})

		ack := f.send(t, s, EventUndoBet, "3", map[string]any{"betKey": "straight_7"})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, map[string]int64{"even_money_red": 100}, ack.Player.Bets)

		ack = f.send(t, s, "double-bet", "4", map[string]any{"bets": map[string]int64{"red": 200}})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, int64(800), ack.Player.Balance)

		ack = f.send(t, s, EventClearBets, "5", nil)
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, int64(1000), ack.Player.Balance)
		assert.Empty(t, ack.Player.Bets)
	})

	t.Run("repeat after settlement", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", map[string]any{"balance": 1000})
		f.send(t, s, EventPlaceBet, "1", map[string]any{"betKey": "black", "amount": 100})

		table, ok := f.registry.TableFor("alice")
		require.True(t, ok)
		f.clock.Add(30 * time.Second)
		table.(*roulette.Table).Advance()

		ack := f.send(t, s, EventRepeatBet, "2", map[string]any{"bets": map[string]int64{"black": 100}})
		assert.False(t, ack.Success)
		assert.Equal(t, roulette.ErrWrongPhase.Error(), ack.Message)

		f.clock.Add(10 * time.Second)
		table.(*roulette.Table).Advance()
		f.clock.Add(5 * time.Second)

		ack = f.send(t, s, EventRepeatBet, "3", map[string]any{"bets": map[string]int64{"black": 100}})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, map[string]int64{"even_money_black": 100}, ack.Player.Bets)
		// 19 is red: the black stake was lost, then staked again.
		assert.Equal(t, int64(800), ack.Player.Balance)

		stored, err := f.store.GetByID(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(900), stored.Balance)
	})
}

func TestLeaveAndDisconnect(t *testing.T) {
	t.Run("leave frees the seat", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", nil)

		ack := f.send(t, s, EventLeaveRoom, "1", map[string]any{"roomId": "main"})
		require.True(t, ack.Success, ack.Message)
		assert.Empty(t, s.PlayerID())

		_, ok := f.registry.TableFor("alice")
		assert.False(t, ok)
		assert.Equal(t, 0, f.registry.Count())
	})

	t.Run("disconnect keeps open bets", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.join(t, "alice", map[string]any{"balance": 1000})
		f.send(t, s, EventPlaceBet, "1", map[string]any{"betKey": "19", "amount": 10})

		f.d.Disconnect(s)
		assert.Empty(t, s.PlayerID())

		table, ok := f.registry.TableFor("alice")
		require.True(t, ok, "seat is held until the bet settles")

		f.clock.Add(30 * time.Second)
		table.(*roulette.Table).Advance()
		f.clock.Add(10 * time.Second)
		table.(*roulette.Table).Advance()

		_, ok = f.registry.TableFor("alice")
		assert.False(t, ok)

		stored, err := f.store.GetByID(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1340), stored.Balance)
	})

	t.Run("disconnect without join", func(t *testing.T) {
		f := newFixture(t, 0)
		f.d.Disconnect(&fakeSession{})
	})
}

func TestLeaderboardEvent(t *testing.T) {
	f := newFixture(t, 0)
	s := f.join(t, "alice", map[string]any{"balance": 1000})
	f.join(t, "bob", map[string]any{"balance": 3000})

	ack := f.send(t, s, EventLeaderboard, "1", map[string]any{"limit": 500})
	require.True(t, ack.Success, ack.Message)
	lb, ok := ack.Data.(*service.Leaderboard)
	require.True(t, ok)
	require.Len(t, lb.TopBalances, 2)
	assert.Equal(t, "bob", lb.TopBalances[0].ID)

	d := NewDispatcher(f.registry, nil, nil, nil, "main", 0)
	for _, ev := range []string{EventLeaderboard, EventRoundHistory, EventStatement} {
		ack = f.sendTo(t, d, s, ev)
		assert.False(t, ack.Success, ev)
		assert.Equal(t, errUnavailable.Error(), ack.Message, ev)
	}
}

// playRound closes betting on alice's table and spins it to payout.
func (f *fixture) playRound(t *testing.T) {
	t.Helper()
	table, ok := f.registry.TableFor("alice")
	require.True(t, ok)
	f.clock.Add(30 * time.Second)
	table.(*roulette.Table).Advance()
	f.clock.Add(10 * time.Second)
	table.(*roulette.Table).Advance()
}

func TestHistoryEvents(t *testing.T) {
	f := newFixture(t, 0)
	alice := f.join(t, "alice", map[string]any{"balance": 1000})
	require.True(t, f.send(t, alice, EventPlaceBet, "1", map[string]any{"betKey": "19", "amount": 10}).Success)
	f.playRound(t)

	t.Run("late joiner sees recent numbers", func(t *testing.T) {
		bob := f.join(t, "bob", nil)
		states := bob.events(EventGameStateUpdate)
		require.NotEmpty(t, states)
		update := states[0].Data.(roulette.GameStateUpdate)
		assert.Equal(t, []int{19}, update.RecentNumbers)
	})

	t.Run("round history carries own bets", func(t *testing.T) {
		ack := f.send(t, alice, "round-history", "2", map[string]any{"limit": 500})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, "main", ack.RoomID)
		rounds, ok := ack.Data.([]service.RoundSummary)
		require.True(t, ok)
		require.Len(t, rounds, 1)
		assert.Equal(t, 19, rounds[0].WinningNumber)
		require.Len(t, rounds[0].MyBets, 1)
		assert.Equal(t, "straight_19", rounds[0].MyBets[0].BetKey)
	})

	t.Run("round history of another room without join", func(t *testing.T) {
		ack := f.send(t, &fakeSession{}, EventRoundHistory, "3", map[string]any{"roomId": "vip"})
		require.True(t, ack.Success, ack.Message)
		assert.Equal(t, "vip", ack.RoomID)
		assert.Empty(t, ack.Data)
	})

	t.Run("statement", func(t *testing.T) {
		ack := f.send(t, alice, EventStatement, "4", nil)
		require.True(t, ack.Success, ack.Message)
		txs, ok := ack.Data.([]*model.Transaction)
		require.True(t, ok)
		require.Len(t, txs, 3)
		assert.Equal(t, int64(350), txs[0].Amount)
		assert.Equal(t, int64(-10), txs[1].Amount)

		ack = f.send(t, &fakeSession{}, EventStatement, "5", nil)
		assert.False(t, ack.Success)
		assert.Equal(t, errNotJoined.Error(), ack.Message)
	})
}

func (f *fixture) sendTo(t *testing.T, d *Dispatcher, s *fakeSession, event string) Ack {
	t.Helper()
	d.Dispatch(context.Background(), s, []byte(`{"event":"`+event+`","id":"x"}`))
	_, ack := s.lastAck(t)
	return ack
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "insufficient balance", errorMessage(roulette.ErrInsufficientBalance))
	assert.Equal(t, "bet amount must be positive",
		errorMessage(errors.Join(errors.New("ctx"), roulette.ErrInvalidAmount)))
	assert.Equal(t, "bets exceed the table limit",
		errorMessage(fmt.Errorf("%w: %d", roulette.ErrStakeLimit, 500)))
	assert.Equal(t, errInternal.Error(), errorMessage(errors.New("pq: connection refused")))
}
