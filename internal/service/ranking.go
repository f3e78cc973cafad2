package service

import (
	"context"
	"fmt"
	"time"

	"roulette-engine/internal/model"
	"roulette-engine/internal/repository"
)

// TopUserSource lists accounts by balance.
type TopUserSource interface {
	GetTopUsers(ctx context.Context, limit int) ([]*model.User, error)
}

// DailyRankSource aggregates game profit per day.
type DailyRankSource interface {
	GetDailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error)
	GetDailyLosers(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error)
	GetUserDailyProfit(ctx context.Context, userID string, date time.Time) (int64, error)
}

var (
	_ TopUserSource   = (*repository.UserRepository)(nil)
	_ DailyRankSource = (*repository.TransactionRepository)(nil)
	_ TopUserSource   = (*MemoryStore)(nil)
	_ DailyRankSource = (*MemoryStore)(nil)
)

// Leaderboard is the combined ranking shown to players.
type Leaderboard struct {
	TopBalances  []*model.User      `json:"topBalances"`
	DailyWinners []*model.DailyRank `json:"dailyWinners"`
	DailyLosers  []*model.DailyRank `json:"dailyLosers"`
	MyProfit     int64              `json:"myProfit"`
}

// RankingService handles ranking and leaderboard operations.
type RankingService struct {
	users    TopUserSource
	daily    DailyRankSource
	timezone *time.Location
	now      func() time.Time
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(users TopUserSource, daily DailyRankSource, timezone *time.Location) *RankingService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &RankingService{
		users:    users,
		daily:    daily,
		timezone: timezone,
		now:      time.Now,
	}
}

func (s *RankingService) today() time.Time {
	return s.now().In(s.timezone)
}

// GetTopUsers retrieves the top users by balance.
func (s *RankingService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	return s.users.GetTopUsers(ctx, limit)
}

// GetDailyWinners retrieves today's biggest winners.
func (s *RankingService) GetDailyWinners(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	return s.daily.GetDailyWinners(ctx, s.today(), limit)
}

// GetDailyLosers retrieves today's biggest losers.
func (s *RankingService) GetDailyLosers(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	return s.daily.GetDailyLosers(ctx, s.today(), limit)
}

// GetUserDailyProfit retrieves a specific user's profit for today.
func (s *RankingService) GetUserDailyProfit(ctx context.Context, userID string) (int64, error) {
	return s.daily.GetUserDailyProfit(ctx, userID, s.today())
}

// GetLeaderboard assembles every ranking for one player's view.
func (s *RankingService) GetLeaderboard(ctx context.Context, userID string, limit int) (*Leaderboard, error) {
	top, err := s.GetTopUsers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	winners, err := s.GetDailyWinners(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily winners: %w", err)
	}
	losers, err := s.GetDailyLosers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily losers: %w", err)
	}

	lb := &Leaderboard{TopBalances: top, DailyWinners: winners, DailyLosers: losers}
	if userID != "" {
		if lb.MyProfit, err = s.GetUserDailyProfit(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to get daily profit: %w", err)
		}
	}
	return lb, nil
}
