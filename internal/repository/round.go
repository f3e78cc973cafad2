package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roulette-engine/internal/model"
)

// ErrRoundNotFound is returned when no round has the requested ID.
var ErrRoundNotFound = errors.New("round not found")

const roundColumns = `id, room_id, winning_number, winning_color, total_bet, total_winnings, player_count, settled_at`

// RoundRepository persists settled rounds and their balance changes.
type RoundRepository struct {
	pool *pgxpool.Pool
}

// NewRoundRepository creates a new RoundRepository instance.
func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

// SaveSettlement writes a round, every player's balance change, the matching
// transactions and the individual bets in one database transaction.
// It is idempotent by round ID: a round that is already stored is left
// untouched and reported with applied == false.
func (r *RoundRepository) SaveSettlement(ctx context.Context, s *model.RoundSettlement) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	round := s.Round
	tag, err := tx.Exec(ctx, `
		INSERT INTO rounds (`+roundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, round.ID, round.RoomID, round.WinningNumber, round.WinningColor,
		round.TotalBet, round.TotalWinnings, round.PlayerCount, round.SettledAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	var bets [][]any
	for _, e := range s.Entries {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET balance = balance + $2, updated_at = NOW()
			WHERE id = $1
		`, e.UserID, e.Net())
		if err != nil {
			return false, fmt.Errorf("failed to update balance for %s: %w", e.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			return false, fmt.Errorf("%w: %s", ErrUserNotFound, e.UserID)
		}

		if e.TotalBet > 0 {
			if err := insertRoundTx(ctx, tx, e.UserID, round, -e.TotalBet, model.TxTypeRouletteBet); err != nil {
				return false, err
			}
		}
		if e.Winnings > 0 {
			if err := insertRoundTx(ctx, tx, e.UserID, round, e.Winnings, model.TxTypeRouletteWin); err != nil {
				return false, err
			}
		}

		keys := make([]string, 0, len(e.Bets))
		for k := range e.Bets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bets = append(bets, []any{round.ID, e.UserID, k, e.Bets[k]})
		}
	}

	if len(bets) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"round_bets"},
			[]string{"round_id", "user_id", "bet_key", "amount"},
			pgx.CopyFromRows(bets),
		)
		if err != nil {
			return false, fmt.Errorf("failed to copy round bets: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}

func insertRoundTx(ctx context.Context, tx pgx.Tx, userID string, round model.Round, amount int64, txType string) error {
	desc := fmt.Sprintf("room %s, number %d", round.RoomID, round.WinningNumber)
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (user_id, round_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID, round.ID, amount, txType, desc, round.SettledAt)
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", txType, userID, err)
	}
	return nil
}

func scanRound(row pgx.Row) (*model.Round, error) {
	var round model.Round
	err := row.Scan(
		&round.ID,
		&round.RoomID,
		&round.WinningNumber,
		&round.WinningColor,
		&round.TotalBet,
		&round.TotalWinnings,
		&round.PlayerCount,
		&round.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// GetRound retrieves a settled round.
func (r *RoundRepository) GetRound(ctx context.Context, id string) (*model.Round, error) {
	round, err := scanRound(r.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

// ListRecent retrieves the latest settled rounds of a room, newest first.
func (r *RoundRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]*model.Round, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE room_id = $1
		ORDER BY settled_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*model.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}

	return rounds, nil
}

// GetBets retrieves the individual wagers of a settled round.
func (r *RoundRepository) GetBets(ctx context.Context, roundID string) ([]*model.RoundBet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT round_id, user_id, bet_key, amount
		FROM round_bets
		WHERE round_id = $1
		ORDER BY user_id, bet_key
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round bets: %w", err)
	}
	defer rows.Close()

	var bets []*model.RoundBet
	for rows.Next() {
		var b model.RoundBet
		if err := rows.Scan(&b.RoundID, &b.UserID, &b.BetKey, &b.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan round bet: %w", err)
		}
		bets = append(bets, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round bets: %w", err)
	}

	return bets, nil
}
