package roulette

// opposites lists the mutually exclusive even-money pairs.
var opposites = map[BetKey]BetKey{
	BetRed:   BetBlack,
	BetBlack: BetRed,
	BetEven:  BetOdd,
	BetOdd:   BetEven,
	BetLow:   BetHigh,
	BetHigh:  BetLow,
}

// Validator decides whether a bet may join a player's current bet set.
type Validator struct {
	// ColumnDozenExclusive enables the house rule that forbids holding a
	// column bet and a dozen bet in the same round.
	ColumnDozenExclusive bool
	// MaxStake caps the total of a player's open bets. Values outside
	// 1..MaxStakeLimit mean MaxStakeLimit.
	MaxStake int64
}

// NewValidator creates a Validator with the given house rule setting and the
// default stake limit.
func NewValidator(columnDozenExclusive bool) *Validator {
	return &Validator{ColumnDozenExclusive: columnDozenExclusive, MaxStake: DefaultMaxStake}
}

// WithinStake reports whether open bets totalling total respect the limit.
func (v *Validator) WithinStake(total int64) bool {
	limit := v.MaxStake
	if limit <= 0 || limit > MaxStakeLimit {
		limit = MaxStakeLimit
	}
	return total >= 0 && total <= limit
}

// IsAllowed reports whether newKey can be added to current. It has no side
// effects; a false result means the caller must leave all state untouched.
func (v *Validator) IsAllowed(newKey BetKey, current BetSet) bool {
	if opp, ok := opposites[newKey]; ok && current[opp] > 0 {
		return false
	}

	if !v.ColumnDozenExclusive {
		return true
	}

	var blocking Category
	switch newKey.Category() {
	case CategoryColumn:
		blocking = CategoryDozen
	case CategoryDozen:
		blocking = CategoryColumn
	default:
		return true
	}

	for key, amount := range current {
		if amount > 0 && key.Category() == blocking {
			return false
		}
	}
	return true
}

// validateSet checks every key of bets against the rest of the set.
func (v *Validator) validateSet(bets BetSet) bool {
	for key := range bets {
		others := bets.Clone()
		delete(others, key)
		if !v.IsAllowed(key, others) {
			return false
		}
	}
	return true
}
