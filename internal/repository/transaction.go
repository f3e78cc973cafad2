package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roulette-engine/internal/model"
)

const transactionColumns = `id, user_id, round_id, amount, type, description, created_at`

// TransactionRepository handles transaction data persistence.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.RoundID,
		&tx.Amount,
		&tx.Type,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetByUserID retrieves a user's transactions, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.Add(24 * time.Hour)
}

// GetDailyWinners retrieves the users with the highest positive game profit
// for a date.
func (r *TransactionRepository) GetDailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return r.dailyRanks(ctx, date, limit, `HAVING SUM(t.amount) > 0 ORDER BY net_profit DESC`)
}

// GetDailyLosers retrieves the users with the largest game loss for a date.
func (r *TransactionRepository) GetDailyLosers(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return r.dailyRanks(ctx, date, limit, `HAVING SUM(t.amount) < 0 ORDER BY net_profit ASC`)
}

func (r *TransactionRepository) dailyRanks(ctx context.Context, date time.Time, limit int, havingOrder string) ([]*model.DailyRank, error) {
	start, end := dayBounds(date)

	query := `
		SELECT t.user_id, u.display_name, COALESCE(SUM(t.amount), 0) AS net_profit
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		WHERE t.type = ANY($1)
		  AND t.created_at >= $2
		  AND t.created_at < $3
		GROUP BY t.user_id, u.display_name
		` + havingOrder + `, t.user_id
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, model.GameTransactionTypes(), start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily ranks: %w", err)
	}
	defer rows.Close()

	var ranks []*model.DailyRank
	for rows.Next() {
		var rank model.DailyRank
		if err := rows.Scan(&rank.UserID, &rank.DisplayName, &rank.NetProfit); err != nil {
			return nil, fmt.Errorf("failed to scan daily rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily ranks: %w", err)
	}

	return ranks, nil
}

// GetUserDailyProfit retrieves a specific user's net game profit for a date.
func (r *TransactionRepository) GetUserDailyProfit(ctx context.Context, userID string, date time.Time) (int64, error) {
	start, end := dayBounds(date)

	var profit int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1
		  AND type = ANY($2)
		  AND created_at >= $3
		  AND created_at < $4
	`, userID, model.GameTransactionTypes(), start, end).Scan(&profit)
	if err != nil {
		return 0, fmt.Errorf("failed to get user daily profit: %w", err)
	}

	return profit, nil
}
