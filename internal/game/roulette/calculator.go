package roulette

// ResultStatus classifies a player's round outcome.
type ResultStatus string

const (
	ResultWin   ResultStatus = "win"
	ResultLose  ResultStatus = "lose"
	ResultNoBet ResultStatus = "no_bet"
)

// Settlement is the outcome of one player's bet set against a drawn number.
type Settlement struct {
	TotalBet int64
	Winnings int64
	Status   ResultStatus
}

// ComputeWinnings returns the sum of amount*multiplier over every bet that
// covers drawn. The stake itself is not included. Bets that miss, and
// numbers outside the wheel, contribute zero.
func ComputeWinnings(drawn int, bets BetSet) int64 {
	var total int64
	for key, amount := range bets {
		if amount <= 0 || !key.Covers(drawn) {
			continue
		}
		total += amount * key.Multiplier()
	}
	return total
}

// Settle computes winnings and classifies the result for one bet set.
func Settle(drawn int, bets BetSet) Settlement {
	s := Settlement{
		TotalBet: bets.Total(),
		Winnings: ComputeWinnings(drawn, bets),
	}
	switch {
	case s.TotalBet == 0:
		s.Status = ResultNoBet
	case s.Winnings > 0:
		s.Status = ResultWin
	default:
		s.Status = ResultLose
	}
	return s
}
