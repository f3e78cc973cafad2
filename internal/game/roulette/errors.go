package roulette

import "errors"

// Errors returned by ledger and table operations. None of them are fatal to
// the table; callers report them back to the player.
var (
	ErrInvalidBetKey       = errors.New("invalid bet key")
	ErrRuleConflict        = errors.New("bet conflicts with an existing bet")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWrongPhase          = errors.New("betting is closed")
	ErrDrawFailure         = errors.New("draw failed")
	ErrInvalidAmount       = errors.New("bet amount must be positive")
	ErrStakeLimit          = errors.New("bets exceed the table limit")
	ErrPlayerNotFound      = errors.New("player not seated at this table")
	ErrNothingToRepeat     = errors.New("no previous bets to repeat")
	ErrBetsAlreadyPlaced   = errors.New("bets already placed this round")
	ErrNoBets              = errors.New("no open bets")
	ErrTableClosed         = errors.New("table is closed")
)
