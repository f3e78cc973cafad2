package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roulette-engine/internal/game/roulette"
	"roulette-engine/internal/model"
)

func TestRoundHistory(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := NewMemoryStore()
	w := NewWalletService(store, store, 1000, 1_000_000, time.Second)
	for _, id := range []string{"alice", "bob"} {
		_, err := w.EnsurePlayer(ctx, id, id, nil)
		require.NoError(t, err)
	}

	settle(t, w, "r1", day,
		roulette.PlayerResult{PlayerID: "alice", TotalBet: 100, Winnings: 3500, Bets: roulette.BetSet{roulette.StraightKey(19): 100}},
		roulette.PlayerResult{PlayerID: "bob", TotalBet: 300, Bets: roulette.BetSet{roulette.BetBlack: 300}},
	)
	settle(t, w, "r2", day.Add(time.Minute),
		roulette.PlayerResult{PlayerID: "bob", TotalBet: 50, Bets: roulette.BetSet{roulette.BetOdd: 50}},
	)

	hs := NewHistoryService(store, store)

	t.Run("newest first with the player's bets", func(t *testing.T) {
		rounds, err := hs.GetRoundHistory(ctx, "main", "alice", 10)
		require.NoError(t, err)
		require.Len(t, rounds, 2)
		assert.Equal(t, "r2", rounds[0].ID)
		assert.Empty(t, rounds[0].MyBets)
		assert.Equal(t, "r1", rounds[1].ID)
		require.Len(t, rounds[1].MyBets, 1)
		assert.Equal(t, "straight_19", rounds[1].MyBets[0].BetKey)
		assert.Equal(t, int64(100), rounds[1].MyBets[0].Amount)
	})

	t.Run("limit and other rooms", func(t *testing.T) {
		rounds, err := hs.GetRoundHistory(ctx, "main", "", 1)
		require.NoError(t, err)
		require.Len(t, rounds, 1)
		assert.Equal(t, "r2", rounds[0].ID)
		assert.Nil(t, rounds[0].MyBets)

		rounds, err = hs.GetRoundHistory(ctx, "vip", "alice", 10)
		require.NoError(t, err)
		assert.Empty(t, rounds)
	})

	t.Run("statement", func(t *testing.T) {
		txs, err := hs.GetStatement(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, model.TxTypeRouletteWin, txs[0].Type)
		assert.Equal(t, int64(3500), txs[0].Amount)
		assert.Equal(t, model.TxTypeRouletteBet, txs[1].Type)
		assert.Equal(t, int64(-100), txs[1].Amount)
		assert.Equal(t, model.TxTypeInitial, txs[2].Type)

		txs, err = hs.GetStatement(ctx, "bob", 1)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		require.NotNil(t, txs[0].RoundID)
		assert.Equal(t, "r2", *txs[0].RoundID)
	})
}
