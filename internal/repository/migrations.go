package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var migrations = []struct {
	name string
	sql  string
}{
	{"users table", `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`},
	{"rounds table", `
		CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			winning_number SMALLINT NOT NULL CHECK (winning_number BETWEEN 0 AND 36),
			winning_color VARCHAR(8) NOT NULL,
			total_bet BIGINT NOT NULL,
			total_winnings BIGINT NOT NULL,
			player_count INT NOT NULL,
			settled_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rounds_room_time ON rounds(room_id, settled_at DESC);
	`},
	{"transactions table", `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			round_id TEXT REFERENCES rounds(id) ON DELETE SET NULL,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_round ON transactions(round_id);
	`},
	{"round_bets table", `
		CREATE TABLE IF NOT EXISTS round_bets (
			round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			bet_key VARCHAR(64) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			PRIMARY KEY (round_id, user_id, bet_key)
		);
	`},
	{"daily_game_stats view", `
		CREATE OR REPLACE VIEW daily_game_stats AS
		SELECT
			user_id,
			SUM(amount) AS net_profit,
			DATE(created_at) AS game_date
		FROM transactions
		WHERE type IN ('roulette_bet', 'roulette_win')
		GROUP BY user_id, DATE(created_at);
	`},
}

// Migrate creates or updates the database schema. Every statement is
// idempotent, so it runs on each startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
