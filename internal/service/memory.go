package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"roulette-engine/internal/model"
	"roulette-engine/internal/repository"
)

// ErrNegativeBalance is returned when a settlement would overdraw an account.
var ErrNegativeBalance = errors.New("balance would become negative")

// MemoryStore keeps accounts and settled rounds in process memory. It backs
// the wallet when no database is configured and mirrors the semantics of the
// postgres repositories, including idempotent settlement by round ID.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[string]*model.User
	rounds map[string]model.Round
	order  []string
	bets   map[string][]model.RoundBet
	txs    []model.Transaction
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		users:  make(map[string]*model.User),
		rounds: make(map[string]model.Round),
		bets:   make(map[string][]model.RoundBet),
	}
}

// GetOrCreate returns the account for id, creating it with balance if absent.
func (m *MemoryStore) GetOrCreate(_ context.Context, id, displayName string, balance int64) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, false, nil
	}

	now := m.now()
	u := &model.User{ID: id, DisplayName: displayName, Balance: balance, CreatedAt: now, UpdatedAt: now}
	m.users[id] = u
	m.appendTxLocked(id, nil, balance, model.TxTypeInitial, now)

	cp := *u
	return &cp, true, nil
}

// GetByID returns a copy of the account.
func (m *MemoryStore) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// UpdateDisplayName renames an account.
func (m *MemoryStore) UpdateDisplayName(_ context.Context, id, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.DisplayName = displayName
	u.UpdatedAt = m.now()
	return nil
}

// SaveSettlement applies a round settlement all-or-nothing.
func (m *MemoryStore) SaveSettlement(_ context.Context, s *model.RoundSettlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rounds[s.Round.ID]; ok {
		return false, nil
	}

	for _, e := range s.Entries {
		u, ok := m.users[e.UserID]
		if !ok {
			return false, fmt.Errorf("%w: %s", repository.ErrUserNotFound, e.UserID)
		}
		if u.Balance+e.Net() < 0 {
			return false, fmt.Errorf("%w: %s", ErrNegativeBalance, e.UserID)
		}
	}

	roundID := s.Round.ID
	for _, e := range s.Entries {
		u := m.users[e.UserID]
		u.Balance += e.Net()
		u.UpdatedAt = s.Round.SettledAt
		if e.TotalBet > 0 {
			m.appendTxLocked(e.UserID, &roundID, -e.TotalBet, model.TxTypeRouletteBet, s.Round.SettledAt)
		}
		if e.Winnings > 0 {
			m.appendTxLocked(e.UserID, &roundID, e.Winnings, model.TxTypeRouletteWin, s.Round.SettledAt)
		}
		for key, amount := range e.Bets {
			m.bets[roundID] = append(m.bets[roundID], model.RoundBet{RoundID: roundID, UserID: e.UserID, BetKey: key, Amount: amount})
		}
	}
	sort.Slice(m.bets[roundID], func(i, j int) bool {
		a, b := m.bets[roundID][i], m.bets[roundID][j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.BetKey < b.BetKey
	})
	m.rounds[roundID] = s.Round
	m.order = append(m.order, roundID)
	return true, nil
}

// GetRound returns a settled round.
func (m *MemoryStore) GetRound(_ context.Context, id string) (*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[id]
	if !ok {
		return nil, repository.ErrRoundNotFound
	}
	return &r, nil
}

// ListRecent returns the latest settled rounds of a room, newest first.
func (m *MemoryStore) ListRecent(_ context.Context, roomID string, limit int) ([]*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rounds []*model.Round
	for i := len(m.order) - 1; i >= 0 && (limit < 0 || len(rounds) < limit); i-- {
		r := m.rounds[m.order[i]]
		if r.RoomID == roomID {
			rounds = append(rounds, &r)
		}
	}
	return rounds, nil
}

// GetBets returns the wagers of a settled round.
func (m *MemoryStore) GetBets(_ context.Context, roundID string) ([]*model.RoundBet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bets := make([]*model.RoundBet, 0, len(m.bets[roundID]))
	for _, b := range m.bets[roundID] {
		cp := b
		bets = append(bets, &cp)
	}
	return bets, nil
}

// GetByUserID returns a user's transactions, newest first.
func (m *MemoryStore) GetByUserID(_ context.Context, userID string, limit int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txs []*model.Transaction
	for i := len(m.txs) - 1; i >= 0 && (limit < 0 || len(txs) < limit); i-- {
		if m.txs[i].UserID == userID {
			cp := m.txs[i]
			txs = append(txs, &cp)
		}
	}
	return txs, nil
}

func (m *MemoryStore) appendTxLocked(userID string, roundID *string, amount int64, txType string, at time.Time) {
	m.nextID++
	m.txs = append(m.txs, model.Transaction{
		ID:        m.nextID,
		UserID:    userID,
		RoundID:   roundID,
		Amount:    amount,
		Type:      txType,
		CreatedAt: at,
	})
}

// GetTopUsers returns accounts ordered by balance, highest first.
func (m *MemoryStore) GetTopUsers(_ context.Context, limit int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Balance != users[j].Balance {
			return users[i].Balance > users[j].Balance
		}
		return users[i].ID < users[j].ID
	})
	if limit >= 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// GetDailyWinners returns users with positive game profit on date.
func (m *MemoryStore) GetDailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return m.dailyRanks(date, limit, func(p int64) bool { return p > 0 }, func(a, b int64) bool { return a > b })
}

// GetDailyLosers returns users with negative game profit on date, biggest loss first.
func (m *MemoryStore) GetDailyLosers(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return m.dailyRanks(date, limit, func(p int64) bool { return p < 0 }, func(a, b int64) bool { return a < b })
}

// GetUserDailyProfit returns one user's game profit on date.
func (m *MemoryStore) GetUserDailyProfit(_ context.Context, userID string, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyProfitsLocked(date)[userID], nil
}

func (m *MemoryStore) dailyRanks(date time.Time, limit int, keep func(int64) bool, before func(a, b int64) bool) ([]*model.DailyRank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ranks []*model.DailyRank
	for id, profit := range m.dailyProfitsLocked(date) {
		if !keep(profit) {
			continue
		}
		ranks = append(ranks, &model.DailyRank{UserID: id, DisplayName: m.users[id].DisplayName, NetProfit: profit})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].NetProfit != ranks[j].NetProfit {
			return before(ranks[i].NetProfit, ranks[j].NetProfit)
		}
		return ranks[i].UserID < ranks[j].UserID
	})
	if limit >= 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks, nil
}

func (m *MemoryStore) dailyProfitsLocked(date time.Time) map[string]int64 {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)

	profits := make(map[string]int64)
	for _, tx := range m.txs {
		if tx.Type != model.TxTypeRouletteBet && tx.Type != model.TxTypeRouletteWin {
			continue
		}
		if tx.CreatedAt.Before(start) || !tx.CreatedAt.Before(end) {
			continue
		}
		profits[tx.UserID] += tx.Amount
	}
	return profits
}
