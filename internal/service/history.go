package service

import (
	"context"
	"fmt"

	"roulette-engine/internal/model"
	"roulette-engine/internal/repository"
)

// RoundArchive reads settled rounds back.
type RoundArchive interface {
	ListRecent(ctx context.Context, roomID string, limit int) ([]*model.Round, error)
	GetBets(ctx context.Context, roundID string) ([]*model.RoundBet, error)
}

// TransactionSource lists a user's balance changes.
type TransactionSource interface {
	GetByUserID(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
}

var (
	_ RoundArchive      = (*repository.RoundRepository)(nil)
	_ TransactionSource = (*repository.TransactionRepository)(nil)
	_ RoundArchive      = (*MemoryStore)(nil)
	_ TransactionSource = (*MemoryStore)(nil)
)

// RoundSummary is a settled round with the requesting player's wagers.
type RoundSummary struct {
	*model.Round
	MyBets []*model.RoundBet `json:"myBets,omitempty"`
}

// HistoryService serves settled rounds and account statements.
type HistoryService struct {
	rounds RoundArchive
	txs    TransactionSource
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(rounds RoundArchive, txs TransactionSource) *HistoryService {
	return &HistoryService{rounds: rounds, txs: txs}
}

// GetRoundHistory retrieves the latest rounds of a room, newest first. When
// playerID is set each round carries that player's bets.
func (s *HistoryService) GetRoundHistory(ctx context.Context, roomID, playerID string, limit int) ([]RoundSummary, error) {
	rounds, err := s.rounds.ListRecent(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	summaries := make([]RoundSummary, 0, len(rounds))
	for _, r := range rounds {
		summary := RoundSummary{Round: r}
		if playerID != "" {
			bets, err := s.rounds.GetBets(ctx, r.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to get bets of round %s: %w", r.ID, err)
			}
			for _, b := range bets {
				if b.UserID == playerID {
					summary.MyBets = append(summary.MyBets, b)
				}
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetStatement retrieves a user's latest balance changes, newest first.
func (s *HistoryService) GetStatement(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	txs, err := s.txs.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	return txs, nil
}
