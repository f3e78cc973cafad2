package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"roulette-engine/internal/game"
	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/model"
	"roulette-engine/internal/service"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

// Rooms is the lobby as used by the dispatcher. *game.Registry implements it.
type Rooms interface {
	Join(roomID, playerID, name string, balance int64) (game.Table, roulette.PlayerSnapshot, error)
	Leave(playerID string) error
	TableFor(playerID string) (game.Table, bool)
}

// Wallet loads player balances. *service.WalletService implements it.
type Wallet interface {
	EnsurePlayer(ctx context.Context, id, displayName string, requested *int64) (int64, error)
}

// Leaderboards builds rankings. *service.RankingService implements it.
type Leaderboards interface {
	GetLeaderboard(ctx context.Context, userID string, limit int) (*service.Leaderboard, error)
}

// History reads settled rounds and statements. *service.HistoryService
// implements it.
type History interface {
	GetRoundHistory(ctx context.Context, roomID, playerID string, limit int) ([]service.RoundSummary, error)
	GetStatement(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
}

var (
	_ Rooms        = (*game.Registry)(nil)
	_ Wallet       = (*service.WalletService)(nil)
	_ Leaderboards = (*service.RankingService)(nil)
	_ History      = (*service.HistoryService)(nil)
)

// Dispatcher routes decoded client frames to event handlers and replies with
// an ack carrying the request ID.
type Dispatcher struct {
	rooms       Rooms
	wallet      Wallet
	ranking     Leaderboards
	history     History
	defaultRoom string
	handlers    map[string]HandlerFunc
}

// NewDispatcher creates a Dispatcher. ranking and history may be nil, in
// which case their events are rejected.
func NewDispatcher(rooms Rooms, wallet Wallet, ranking Leaderboards, history History, defaultRoom string, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		rooms:       rooms,
		wallet:      wallet,
		ranking:     ranking,
		history:     history,
		defaultRoom: defaultRoom,
	}

	mws := []Middleware{RecoveryMiddleware(), LoggingMiddleware(), TimeoutMiddleware(timeout)}
	d.handlers = map[string]HandlerFunc{
		EventJoin:         chain(d.handleJoin, mws...),
		EventPlaceBet:     chain(d.handlePlaceBet, mws...),
		EventClearBets:    chain(d.handleClearBets, mws...),
		EventUndoBet:      chain(d.handleUndoBet, mws...),
		EventRepeatBet:    chain(d.handleRepeatBet, mws...),
		EventDoubleBet:    chain(d.handleDoubleBet, mws...),
		EventLeaveRoom:    chain(d.handleLeaveRoom, mws...),
		EventLeaderboard:  chain(d.handleLeaderboard, mws...),
		EventRoundHistory: chain(d.handleRoundHistory, mws...),
		EventStatement:    chain(d.handleStatement, mws...),
	}
	return d
}

// Dispatch handles one raw frame from s.
func (d *Dispatcher) Dispatch(ctx context.Context, s Session, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Event == "" {
		s.Send(Outbound{Event: EventAck, Data: Ack{Message: errMalformed.Error()}})
		return
	}

	h, ok := d.handlers[canonicalEvent(req.Event)]
	if !ok {
		s.Send(Outbound{Event: EventAck, ID: req.ID, Data: Ack{Message: errUnknownEvent.Error()}})
		return
	}

	ack, err := h(ctx, s, req)
	if err != nil {
		ack = Ack{Message: errorMessage(err)}
	} else {
		ack.Success = true
	}
	s.Send(Outbound{Event: EventAck, ID: req.ID, Data: ack})
}

// Disconnect leaves the table for a closed connection. Open bets stay on the
// table and settle normally.
func (d *Dispatcher) Disconnect(s Session) {
	playerID := s.PlayerID()
	if playerID == "" {
		return
	}
	if err := d.rooms.Leave(playerID); err != nil && !errors.Is(err, game.ErrNotSeated) {
		log.Warn().Err(err).Str("player_id", playerID).Msg("Failed to leave table on disconnect")
	}
	s.Bind("", "")
}

func (d *Dispatcher) handleJoin(ctx context.Context, s Session, req Request) (Ack, error) {
	var body joinRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	if body.UserID == "" {
		return Ack{}, errMissingUser
	}
	if current := s.PlayerID(); current != "" && current != body.UserID {
		return Ack{}, errRebind
	}

	roomID := body.RoomID
	if roomID == "" {
		roomID = d.defaultRoom
	}
	name := body.UserName
	if name == "" {
		name = body.UserID
	}

	balance, err := d.wallet.EnsurePlayer(ctx, body.UserID, name, body.Balance)
	if err != nil {
		return Ack{}, err
	}

	table, snap, err := d.rooms.Join(roomID, body.UserID, name, balance)
	if err != nil {
		return Ack{}, err
	}
	s.Bind(body.UserID, roomID)

	s.Send(Outbound{Event: EventPlayerInitialized, Data: PlayerInitialized{
		Balance:  snap.Balance,
		PlayerID: snap.PlayerID,
	}})
	s.Send(Outbound{Event: EventGameStateUpdate, Data: currentState(table.State())})

	return Ack{RoomID: roomID, Player: viewOf(snap)}, nil
}

// currentState renders the round a joining player walks into.
func currentState(st roulette.RoundState) roulette.GameStateUpdate {
	secs := st.SecondsLeft
	update := roulette.GameStateUpdate{State: st.Phase, Time: &secs}
	if len(st.RecentNumbers) > 0 {
		update.RecentNumbers = append([]int(nil), st.RecentNumbers...)
	}
	if st.DrawnNumber != nil && st.Phase != roulette.PhaseBetting {
		n := *st.DrawnNumber
		update.WinningNumber = &n
		update.WinningColor = roulette.ColorOf(n)
	}
	return update
}

// seatedTable resolves the table of the session's player, checking the room
// named in the request when there is one.
func (d *Dispatcher) seatedTable(s Session, roomID string) (game.Table, error) {
	playerID := s.PlayerID()
	if playerID == "" {
		return nil, errNotJoined
	}
	if roomID != "" && roomID != s.RoomID() {
		return nil, fmt.Errorf("%w: %s", errWrongRoom, roomID)
	}
	t, ok := d.rooms.TableFor(playerID)
	if !ok {
		return nil, game.ErrNotSeated
	}
	return t, nil
}

func (d *Dispatcher) handlePlaceBet(_ context.Context, s Session, req Request) (Ack, error) {
	var body placeBetRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	t, err := d.seatedTable(s, body.RoomID)
	if err != nil {
		return Ack{}, err
	}
	key, err := roulette.NormalizeBetKey(body.BetKey)
	if err != nil {
		return Ack{}, err
	}
	snap, err := t.PlaceBet(s.PlayerID(), key, body.Amount)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Player: viewOf(snap)}, nil
}

func (d *Dispatcher) handleClearBets(_ context.Context, s Session, req Request) (Ack, error) {
	var body roomRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	t, err := d.seatedTable(s, body.RoomID)
	if err != nil {
		return Ack{}, err
	}
	snap, err := t.ClearBets(s.PlayerID())
	if err != nil {
		return Ack{}, err
	}
	return Ack{Player: viewOf(snap)}, nil
}

func (d *Dispatcher) handleUndoBet(_ context.Context, s Session, req Request) (Ack, error) {
	var body undoBetRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	t, err := d.seatedTable(s, body.RoomID)
	if err != nil {
		return Ack{}, err
	}
	snap, err := t.UndoBet(s.PlayerID())
	if err != nil {
		return Ack{}, err
	}
	if body.BetKey != "" {
		log.Debug().
			Str("player_id", s.PlayerID()).
			Str("client_key", body.BetKey).
			Int64("total_bet", snap.TotalBet).
			Msg("Undo applied to last snapshot")
	}
	return Ack{Player: viewOf(snap)}, nil
}

func (d *Dispatcher) handleRepeatBet(_ context.Context, s Session, req Request) (Ack, error) {
	return d.replay(s, req, "repeat", game.Table.RepeatBet)
}

func (d *Dispatcher) handleDoubleBet(_ context.Context, s Session, req Request) (Ack, error) {
	return d.replay(s, req, "double", game.Table.DoubleBet)
}

// replay runs repeat or double against the ledger and compares the result
// with the bets the client expected.
func (d *Dispatcher) replay(s Session, req Request, op string, fn func(game.Table, string) (roulette.PlayerSnapshot, error)) (Ack, error) {
	var body betsRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	t, err := d.seatedTable(s, body.RoomID)
	if err != nil {
		return Ack{}, err
	}
	snap, err := fn(t, s.PlayerID())
	if err != nil {
		return Ack{}, err
	}

	if body.Bets != nil {
		expected, invalid := normalizeBets(body.Bets)
		if actual := betMap(snap.Bets); len(invalid) > 0 || !sameBets(expected, actual) {
			log.Warn().
				Str("player_id", s.PlayerID()).
				Str("op", op).
				Interface("client_bets", body.Bets).
				Interface("ledger_bets", actual).
				Strs("invalid_labels", invalid).
				Msg("Client bets differ from ledger")
		}
	}
	return Ack{Player: viewOf(snap)}, nil
}

func (d *Dispatcher) handleLeaveRoom(_ context.Context, s Session, req Request) (Ack, error) {
	var body roomRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	if _, err := d.seatedTable(s, body.RoomID); err != nil {
		return Ack{}, err
	}
	if err := d.rooms.Leave(s.PlayerID()); err != nil {
		return Ack{}, err
	}
	s.Bind("", "")
	return Ack{}, nil
}

func (d *Dispatcher) handleLeaderboard(ctx context.Context, s Session, req Request) (Ack, error) {
	if d.ranking == nil {
		return Ack{}, errUnavailable
	}
	var body leaderboardRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	lb, err := d.ranking.GetLeaderboard(ctx, s.PlayerID(), clampLimit(body.Limit))
	if err != nil {
		return Ack{}, err
	}
	return Ack{Data: lb}, nil
}

func (d *Dispatcher) handleRoundHistory(ctx context.Context, s Session, req Request) (Ack, error) {
	if d.history == nil {
		return Ack{}, errUnavailable
	}
	var body historyRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}
	roomID := body.RoomID
	if roomID == "" {
		roomID = s.RoomID()
	}
	if roomID == "" {
		roomID = d.defaultRoom
	}

	rounds, err := d.history.GetRoundHistory(ctx, roomID, s.PlayerID(), clampLimit(body.Limit))
	if err != nil {
		return Ack{}, err
	}
	return Ack{RoomID: roomID, Data: rounds}, nil
}

func (d *Dispatcher) handleStatement(ctx context.Context, s Session, req Request) (Ack, error) {
	if d.history == nil {
		return Ack{}, errUnavailable
	}
	if s.PlayerID() == "" {
		return Ack{}, errNotJoined
	}
	var body historyRequest
	if err := decode(req, &body); err != nil {
		return Ack{}, err
	}

	txs, err := d.history.GetStatement(ctx, s.PlayerID(), clampLimit(body.Limit))
	if err != nil {
		return Ack{}, err
	}
	return Ack{Data: txs}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
