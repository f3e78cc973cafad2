package roulette

import (
	"context"
	"time"
)

// Phase is the stage of the current round.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseBetting  Phase = "betting"
	PhaseSpinning Phase = "spinning"
	PhasePayout   Phase = "payout"
)

// GameStateUpdate is pushed to clients on every phase change. Optional fields
// are pointers because zero is a meaningful number, balance and payout.
type GameStateUpdate struct {
	State         Phase        `json:"state"`
	Time          *int         `json:"time,omitempty"`
	WinningNumber *int         `json:"winningNumber,omitempty"`
	WinningColor  Color        `json:"winningColor,omitempty"`
	TotalWinnings *int64       `json:"totalWinnings,omitempty"`
	NewBalance    *int64       `json:"newBalance,omitempty"`
	ResultStatus  ResultStatus `json:"resultStatus,omitempty"`
	RecentNumbers []int        `json:"recentNumbers,omitempty"`
}

// Notifier delivers table events to connected clients. Calls are made
// outside the table lock and must not block for long.
type Notifier interface {
	Broadcast(roomID string, update GameStateUpdate)
	Notify(roomID, playerID string, update GameStateUpdate)
}

// Settler persists a round's balance changes. The table awaits it before
// crediting winnings; an error aborts or retries the settlement.
type Settler interface {
	SettleRound(ctx context.Context, result *RoundResult) error
}

// SettlementChecker is an optional Settler extension. It reports whether a
// round was stored even though SettleRound returned an error, e.g. when the
// commit landed after the context deadline.
type SettlementChecker interface {
	IsSettled(ctx context.Context, roundID string) (bool, error)
}

// PlayerResult is one player's line in a settled round.
type PlayerResult struct {
	PlayerID    string
	DisplayName string
	TotalBet    int64
	Winnings    int64
	Balance     int64 // balance after winnings are credited
	Status      ResultStatus
	Bets        BetSet
}

// Net returns the balance change caused by the round.
func (r PlayerResult) Net() int64 {
	return r.Winnings - r.TotalBet
}

// RoundResult is the batch of balance changes produced at payout.
type RoundResult struct {
	RoundID       string
	RoomID        string
	WinningNumber int
	WinningColor  Color
	SettledAt     time.Time
	Players       []PlayerResult
}

// TotalBet returns the sum of all stakes in the round.
func (r *RoundResult) TotalBet() int64 {
	var total int64
	for _, p := range r.Players {
		total += p.TotalBet
	}
	return total
}

// TotalWinnings returns the sum of all winnings paid in the round.
func (r *RoundResult) TotalWinnings() int64 {
	var total int64
	for _, p := range r.Players {
		total += p.Winnings
	}
	return total
}

// RoundState is a read-only view of the current round.
type RoundState struct {
	RoundID       string
	Phase         Phase
	SecondsLeft   int
	DrawnNumber   *int
	PlayerCount   int
	RecentNumbers []int
}

// PlayerSnapshot is a read-only view of one player's ledger.
type PlayerSnapshot struct {
	PlayerID    string
	DisplayName string
	Balance     int64
	Bets        BetSet
	TotalBet    int64
	Phase       Phase
	RoundID     string
	SecondsLeft int
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// secondsUntil rounds a positive remaining duration up to whole seconds.
func secondsUntil(now, deadline time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
