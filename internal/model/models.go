// Package model defines the persisted data models of the roulette engine.
package model

import "time"

// User is a player account. Balance is the settled balance; bets open in a
// running round are only reflected here once the round settles.
type User struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Balance     int64     `db:"balance" json:"balance"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
	UpdatedAt   time.Time `db:"updated_at" json:"-"`
}

// Transaction represents a balance change record.
type Transaction struct {
	ID          int64     `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	RoundID     *string   `db:"round_id" json:"roundId,omitempty"`
	Amount      int64     `db:"amount" json:"amount"`
	Type        string    `db:"type" json:"type"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Round is the audit record of one settled roulette round.
type Round struct {
	ID            string    `db:"id" json:"id"`
	RoomID        string    `db:"room_id" json:"roomId"`
	WinningNumber int       `db:"winning_number" json:"winningNumber"`
	WinningColor  string    `db:"winning_color" json:"winningColor"`
	TotalBet      int64     `db:"total_bet" json:"totalBet"`
	TotalWinnings int64     `db:"total_winnings" json:"totalWinnings"`
	PlayerCount   int       `db:"player_count" json:"playerCount"`
	SettledAt     time.Time `db:"settled_at" json:"settledAt"`
}

// RoundBet is one wager of one player in a settled round.
type RoundBet struct {
	RoundID string `db:"round_id" json:"-"`
	UserID  string `db:"user_id" json:"-"`
	BetKey  string `db:"bet_key" json:"betKey"`
	Amount  int64  `db:"amount" json:"amount"`
}

// SettlementEntry is one player's share of a round settlement.
type SettlementEntry struct {
	UserID   string
	TotalBet int64
	Winnings int64
	Bets     map[string]int64
}

// Net returns the balance change applied to the user.
func (e SettlementEntry) Net() int64 {
	return e.Winnings - e.TotalBet
}

// RoundSettlement is everything written atomically when a round pays out.
type RoundSettlement struct {
	Round   Round
	Entries []SettlementEntry
}

// DailyRank represents a user's daily game performance for ranking.
type DailyRank struct {
	UserID      string `db:"user_id" json:"userId"`
	DisplayName string `db:"display_name" json:"displayName"`
	NetProfit   int64  `db:"net_profit" json:"netProfit"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial     = "initial"      // Initial balance on account creation
	TxTypeRouletteBet = "roulette_bet" // Stakes lost to the table
	TxTypeRouletteWin = "roulette_win" // Winnings paid by the table
)

// GameTransactionTypes returns the transaction types that count towards daily rankings.
func GameTransactionTypes() []string {
	return []string{TxTypeRouletteBet, TxTypeRouletteWin}
}
