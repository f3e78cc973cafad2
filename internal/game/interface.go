// Package game defines the table interface and the lobby registry that seats
// players at roulette tables.
package game

import (
	"context"

	"roulette-engine/internal/game/roulette"
)

// Table is one running room. *roulette.Table implements it.
type Table interface {
	// ID returns the room identifier.
	ID() string

	// Join seats or reconnects a player. balance is only used for new seats.
	Join(playerID, name string, balance int64) (roulette.PlayerSnapshot, error)

	// Leave disconnects a player and reports whether they were released
	// immediately. Players with open bets stay until settlement.
	Leave(playerID string) (bool, error)

	PlaceBet(playerID string, key roulette.BetKey, amount int64) (roulette.PlayerSnapshot, error)
	ClearBets(playerID string) (roulette.PlayerSnapshot, error)
	UndoBet(playerID string) (roulette.PlayerSnapshot, error)
	RepeatBet(playerID string) (roulette.PlayerSnapshot, error)
	DoubleBet(playerID string) (roulette.PlayerSnapshot, error)

	// Player returns a snapshot of one seated player.
	Player(playerID string) (roulette.PlayerSnapshot, error)

	// State returns the current round view.
	State() roulette.RoundState

	// PlayerCount returns the number of seated players.
	PlayerCount() int

	// Run drives timed phase transitions until ctx ends or Close is called.
	Run(ctx context.Context) error

	// Close stops the table.
	Close()
}

// TableFactory builds the table for a room. onRelease must be called whenever
// the table drops a player from its ledger.
type TableFactory func(roomID string, onRelease func(roomID, playerID string)) Table

var _ Table = (*roulette.Table)(nil)
