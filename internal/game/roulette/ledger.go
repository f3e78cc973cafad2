package roulette

import (
	"fmt"
	"sort"
)

// BetSet maps a bet key to the amount a player has accumulated on it this
// round. Amounts are always positive; zero entries are removed.
type BetSet map[BetKey]int64

// Total returns the sum of all amounts.
func (b BetSet) Total() int64 {
	var total int64
	for _, amount := range b {
		total += amount
	}
	return total
}

// Clone returns an independent copy of b.
func (b BetSet) Clone() BetSet {
	c := make(BetSet, len(b))
	for k, v := range b {
		if v > 0 {
			c[k] = v
		}
	}
	return c
}

// Keys returns the keys of b in sorted order.
func (b BetSet) Keys() []BetKey {
	keys := make([]BetKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Player is one seat's ledger: spendable balance, open bets and the bet
// history used by undo and repeat. A Player is owned by its Table and only
// mutated under the table lock.
type Player struct {
	ID          string
	DisplayName string
	Balance     int64

	bets     BetSet
	history  []BetSet // history[0] is always the empty baseline
	lastBets BetSet   // replayed by repeat

	connected bool
	departed  bool
}

func newPlayer(id, name string, balance int64) *Player {
	p := &Player{
		ID:          id,
		DisplayName: name,
		Balance:     balance,
		bets:        BetSet{},
		lastBets:    BetSet{},
		connected:   true,
	}
	p.resetHistory()
	return p
}

func (p *Player) resetHistory() {
	p.history = []BetSet{{}}
}

func (p *Player) pushHistory() {
	p.history = append(p.history, p.bets.Clone())
}

// Bets returns a copy of the player's open bets.
func (p *Player) Bets() BetSet {
	return p.bets.Clone()
}

// LastBets returns a copy of the bet set that repeat would replay.
func (p *Player) LastBets() BetSet {
	return p.lastBets.Clone()
}

func (p *Player) placeBet(v *Validator, key BetKey, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBetKey, key)
	}
	if amount > p.Balance {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, amount, p.Balance)
	}
	if !v.WithinStake(p.bets.Total() + amount) {
		return fmt.Errorf("%w: %d", ErrStakeLimit, v.MaxStake)
	}
	if !v.IsAllowed(key, p.bets) {
		return fmt.Errorf("%w: %s", ErrRuleConflict, key)
	}

	p.Balance -= amount
	p.bets[key] += amount
	p.pushHistory()
	return nil
}

// clearBets refunds every open bet. The cleared set becomes repeatable.
func (p *Player) clearBets() int64 {
	refund := p.bets.Total()
	if refund > 0 {
		p.lastBets = p.bets.Clone()
	}
	p.Balance += refund
	p.bets = BetSet{}
	p.resetHistory()
	return refund
}

// undoBet reverts to the previous history snapshot and refunds the
// difference. It reports false when there is nothing to undo.
func (p *Player) undoBet() bool {
	if len(p.history) <= 1 {
		return false
	}
	prev := p.history[len(p.history)-2]
	p.Balance += p.bets.Total() - prev.Total()
	p.bets = prev.Clone()
	p.history = p.history[:len(p.history)-1]
	return true
}

func (p *Player) repeatBet(v *Validator) error {
	if len(p.bets) > 0 {
		return ErrBetsAlreadyPlaced
	}
	if len(p.lastBets) == 0 {
		return ErrNothingToRepeat
	}

	total := p.lastBets.Total()
	if total > p.Balance {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, total, p.Balance)
	}
	if !v.WithinStake(total) {
		return fmt.Errorf("%w: %d", ErrStakeLimit, v.MaxStake)
	}

	acc := BetSet{}
	for _, key := range p.lastBets.Keys() {
		if !v.IsAllowed(key, acc) {
			return fmt.Errorf("%w: %s", ErrRuleConflict, key)
		}
		acc[key] = p.lastBets[key]
	}

	p.Balance -= total
	p.bets = acc
	p.pushHistory()
	return nil
}

func (p *Player) doubleBet(v *Validator) error {
	if len(p.bets) == 0 {
		return ErrNoBets
	}

	extra := p.bets.Total()
	if extra > p.Balance {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, extra, p.Balance)
	}
	if !v.WithinStake(extra) || !v.WithinStake(2*extra) {
		return fmt.Errorf("%w: %d", ErrStakeLimit, v.MaxStake)
	}

	doubled := make(BetSet, len(p.bets))
	for k, amount := range p.bets {
		doubled[k] = amount * 2
	}
	if !v.validateSet(doubled) {
		return ErrRuleConflict
	}

	p.Balance -= extra
	p.bets = doubled
	p.pushHistory()
	return nil
}

// applySettlement credits winnings, archives the bet set for repeat and
// opens a fresh ledger for the next round.
func (p *Player) applySettlement(s Settlement) {
	p.Balance += s.Winnings
	if len(p.bets) > 0 {
		p.lastBets = p.bets.Clone()
	}
	p.bets = BetSet{}
	p.resetHistory()
}

// refundAll returns all open bets to the balance after an aborted round.
func (p *Player) refundAll() int64 {
	return p.clearBets()
}
