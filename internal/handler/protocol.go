// Package handler dispatches client events to the lobby and the tables.
package handler

import (
	"encoding/json"
	"fmt"
	"sort"

	"roulette-engine/internal/game/roulette"
)

// Client to server events.
const (
	EventJoin         = "join"
	EventPlaceBet     = "placeBet"
	EventClearBets    = "clearBets"
	EventUndoBet      = "undoBet"
	EventRepeatBet    = "repeatBet"
	EventDoubleBet    = "doubleBet"
	EventLeaveRoom    = "leaveRoom"
	EventLeaderboard  = "leaderboard"
	EventRoundHistory = "roundHistory"
	EventStatement    = "statement"
)

// Server to client events.
const (
	EventAck               = "ack"
	EventGameStateUpdate   = "gameStateUpdate"
	EventPlayerInitialized = "playerInitialized"
)

// eventAliases maps the dashed event names older clients emit.
var eventAliases = map[string]string{
	"single-join":   EventJoin,
	"place-bet":     EventPlaceBet,
	"clear-bets":    EventClearBets,
	"undo-bet":      EventUndoBet,
	"repeat-bet":    EventRepeatBet,
	"double-bet":    EventDoubleBet,
	"leave-room":    EventLeaveRoom,
	"round-history": EventRoundHistory,
}

func canonicalEvent(name string) string {
	if alias, ok := eventAliases[name]; ok {
		return alias
	}
	return name
}

// Request is one inbound frame. ID is echoed on the ack.
type Request struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is one frame sent to a client.
type Outbound struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Ack answers a request.
type Ack struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	RoomID  string      `json:"roomId,omitempty"`
	Player  *PlayerView `json:"player,omitempty"`
	Data    any         `json:"data,omitempty"`
}

// PlayerView is the ledger state returned after a bet operation.
type PlayerView struct {
	Balance  int64            `json:"balance"`
	Bets     map[string]int64 `json:"bets"`
	TotalBet int64            `json:"totalBet"`
}

func viewOf(s roulette.PlayerSnapshot) *PlayerView {
	return &PlayerView{
		Balance:  s.Balance,
		Bets:     betMap(s.Bets),
		TotalBet: s.TotalBet,
	}
}

func betMap(b roulette.BetSet) map[string]int64 {
	m := make(map[string]int64, len(b))
	for k, v := range b {
		m[string(k)] = v
	}
	return m
}

// PlayerInitialized tells a client its seat is ready.
type PlayerInitialized struct {
	Balance  int64  `json:"balance"`
	PlayerID string `json:"playerId"`
}

// Session is one client connection as seen by the dispatcher. Send must not
// block.
type Session interface {
	PlayerID() string
	RoomID() string
	Bind(playerID, roomID string)
	Send(msg Outbound)
}

type joinRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Balance  *int64 `json:"balance,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
}

type roomRequest struct {
	RoomID string `json:"roomId,omitempty"`
}

type placeBetRequest struct {
	RoomID string `json:"roomId,omitempty"`
	BetKey string `json:"betKey"`
	Amount int64  `json:"amount"`
}

type undoBetRequest struct {
	RoomID string `json:"roomId,omitempty"`
	BetKey string `json:"betKey,omitempty"`
}

// betsRequest carries the client's view of its bets. The table ledger is
// authoritative; the field is only compared for diagnostics.
type betsRequest struct {
	RoomID string           `json:"roomId,omitempty"`
	Bets   map[string]int64 `json:"bets,omitempty"`
}

type leaderboardRequest struct {
	Limit int `json:"limit,omitempty"`
}

type historyRequest struct {
	RoomID string `json:"roomId,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func decode(req Request, v any) error {
	if len(req.Data) == 0 || string(req.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// normalizeBets maps client labels to canonical keys and sums duplicates.
// Labels that do not normalize are reported separately.
func normalizeBets(bets map[string]int64) (map[string]int64, []string) {
	out := make(map[string]int64, len(bets))
	var invalid []string
	for label, amount := range bets {
		key, err := roulette.NormalizeBetKey(label)
		if err != nil {
			invalid = append(invalid, label)
			continue
		}
		out[string(key)] += amount
	}
	sort.Strings(invalid)
	return out, invalid
}

func sameBets(a, b map[string]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
