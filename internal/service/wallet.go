// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/model"
	"roulette-engine/internal/pkg/lock"
	"roulette-engine/internal/repository"
)

// ErrInvalidBalance is returned when a join requests a starting balance that
// is negative or above the table maximum.
var ErrInvalidBalance = errors.New("invalid starting balance")

// UserStore is the account storage used by the wallet.
type UserStore interface {
	GetOrCreate(ctx context.Context, id, displayName string, balance int64) (*model.User, bool, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// RoundStore persists round settlements atomically.
type RoundStore interface {
	SaveSettlement(ctx context.Context, s *model.RoundSettlement) (bool, error)
	GetRound(ctx context.Context, id string) (*model.Round, error)
}

var (
	_ roulette.Settler           = (*WalletService)(nil)
	_ roulette.SettlementChecker = (*WalletService)(nil)
	_ UserStore                  = (*repository.UserRepository)(nil)
	_ RoundStore                 = (*repository.RoundRepository)(nil)
	_ UserStore                  = (*MemoryStore)(nil)
	_ RoundStore                 = (*MemoryStore)(nil)
)

// WalletService owns account balances outside the tables. It loads a
// player's balance on join and writes each round's balance changes as one
// batch when a table pays out.
type WalletService struct {
	users          UserStore
	rounds         RoundStore
	locks          *lock.KeyLock
	initialBalance int64
	maxBalance     int64
	lockTimeout    time.Duration
}

// NewWalletService creates a new WalletService instance. maxBalance caps the
// balance a new account may be seeded with.
func NewWalletService(users UserStore, rounds RoundStore, initialBalance, maxBalance int64, lockTimeout time.Duration) *WalletService {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	if maxBalance <= 0 || maxBalance > roulette.MaxSeatBalance {
		maxBalance = roulette.MaxSeatBalance
	}
	return &WalletService{
		users:          users,
		rounds:         rounds,
		locks:          lock.NewKeyLock(),
		initialBalance: initialBalance,
		maxBalance:     maxBalance,
		lockTimeout:    lockTimeout,
	}
}

// EnsurePlayer returns the stored balance for a player, creating the account
// on first sight. requested seeds a new account; an existing account keeps
// its stored balance.
func (s *WalletService) EnsurePlayer(ctx context.Context, id, displayName string, requested *int64) (int64, error) {
	balance := s.initialBalance
	if requested != nil {
		if *requested < 0 || *requested > s.maxBalance {
			return 0, ErrInvalidBalance
		}
		balance = *requested
	}

	var user *model.User
	err := s.locks.WithLockContext(ctx, id, s.lockTimeout, func() error {
		u, created, err := s.users.GetOrCreate(ctx, id, displayName, balance)
		if err != nil {
			return err
		}
		if created {
			log.Info().Str("player_id", id).Int64("balance", u.Balance).Msg("Account created")
		} else if displayName != "" && u.DisplayName != displayName {
			if err := s.users.UpdateDisplayName(ctx, id, displayName); err != nil {
				log.Warn().Err(err).Str("player_id", id).Msg("Failed to update display name")
			} else {
				u.DisplayName = displayName
			}
		}
		user = u
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to ensure player: %w", err)
	}
	return user.Balance, nil
}

// GetBalance retrieves a player's settled balance.
func (s *WalletService) GetBalance(ctx context.Context, id string) (int64, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// SettleRound implements roulette.Settler. The players of the round are
// locked together and the batch is written in one store call, so either all
// balances change or none do. Replaying an already stored round is a no-op.
func (s *WalletService) SettleRound(ctx context.Context, result *roulette.RoundResult) error {
	settlement := toSettlement(result)

	ids := make([]string, len(settlement.Entries))
	for i, e := range settlement.Entries {
		ids[i] = e.UserID
	}

	var applied bool
	err := s.locks.WithLocksContext(ctx, ids, s.lockTimeout, func() error {
		var err error
		applied, err = s.rounds.SaveSettlement(ctx, settlement)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to settle round %s: %w", result.RoundID, err)
	}

	if !applied {
		log.Warn().
			Str("room_id", result.RoomID).
			Str("round_id", result.RoundID).
			Msg("Round already settled, skipping")
		return nil
	}

	log.Info().
		Str("room_id", result.RoomID).
		Str("round_id", result.RoundID).
		Int("winning_number", result.WinningNumber).
		Int("players", len(result.Players)).
		Int64("total_bet", settlement.Round.TotalBet).
		Int64("total_winnings", settlement.Round.TotalWinnings).
		Msg("Round settled")
	return nil
}

// IsSettled implements roulette.SettlementChecker by looking the round up in
// the store.
func (s *WalletService) IsSettled(ctx context.Context, roundID string) (bool, error) {
	if _, err := s.rounds.GetRound(ctx, roundID); err != nil {
		if errors.Is(err, repository.ErrRoundNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check round %s: %w", roundID, err)
	}
	return true, nil
}

func toSettlement(result *roulette.RoundResult) *model.RoundSettlement {
	entries := make([]model.SettlementEntry, 0, len(result.Players))
	for _, p := range result.Players {
		bets := make(map[string]int64, len(p.Bets))
		for k, v := range p.Bets {
			bets[string(k)] = v
		}
		entries = append(entries, model.SettlementEntry{
			UserID:   p.PlayerID,
			TotalBet: p.TotalBet,
			Winnings: p.Winnings,
			Bets:     bets,
		})
	}

	return &model.RoundSettlement{
		Round: model.Round{
			ID:            result.RoundID,
			RoomID:        result.RoomID,
			WinningNumber: result.WinningNumber,
			WinningColor:  string(result.WinningColor),
			TotalBet:      result.TotalBet(),
			TotalWinnings: result.TotalWinnings(),
			PlayerCount:   len(result.Players),
			SettledAt:     result.SettledAt,
		},
		Entries: entries,
	}
}
