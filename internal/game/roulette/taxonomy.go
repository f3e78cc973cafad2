// Package roulette implements the authoritative European roulette round engine:
// bet taxonomy, rule validation, payout math, player ledgers and the table
// state machine that drives betting, spinning and payout phases.
package roulette

import (
	"fmt"
	"sort"
	"strconv"
)

// BetKey is the canonical identifier of one wager type, e.g. "straight_17",
// "split_17_18" or "even_money_red".
type BetKey string

// Category groups bet keys that share a payout multiplier.
type Category string

const (
	CategoryStraight  Category = "straight"
	CategorySplit     Category = "split"
	CategoryStreet    Category = "street"
	CategoryCorner    Category = "corner"
	CategoryLine      Category = "line"
	CategoryColumn    Category = "column"
	CategoryDozen     Category = "dozen"
	CategoryEvenMoney Category = "even_money"
)

// Even-money bet keys.
const (
	BetRed   BetKey = "even_money_red"
	BetBlack BetKey = "even_money_black"
	BetEven  BetKey = "even_money_even"
	BetOdd   BetKey = "even_money_odd"
	BetLow   BetKey = "even_money_low"
	BetHigh  BetKey = "even_money_high"
)

const (
	// MinNumber and MaxNumber bound the pockets of a single-zero wheel.
	MinNumber = 0
	MaxNumber = 36
)

// Multiplier returns the payout ratio (N in N:1) for the category.
func (c Category) Multiplier() int64 {
	switch c {
	case CategoryStraight:
		return 35
	case CategorySplit:
		return 17
	case CategoryStreet:
		return 11
	case CategoryCorner:
		return 8
	case CategoryLine:
		return 5
	case CategoryColumn, CategoryDozen:
		return 2
	case CategoryEvenMoney:
		return 1
	default:
		return 0
	}
}

// Color is the pocket color of a drawn number.
type Color string

const (
	ColorGreen Color = "green"
	ColorRed   Color = "red"
	ColorBlack Color = "black"
)

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// ColorOf returns the pocket color of n. Zero is green.
func ColorOf(n int) Color {
	if n == 0 {
		return ColorGreen
	}
	if redNumbers[n] {
		return ColorRed
	}
	return ColorBlack
}

// ValidNumber reports whether n is a pocket on the wheel.
func ValidNumber(n int) bool {
	return n >= MinNumber && n <= MaxNumber
}

type betInfo struct {
	category Category
	numbers  []int
	covers   map[int]bool
}

// catalog is the single source of truth for every admissible bet key.
var catalog = buildCatalog()

func buildCatalog() map[BetKey]betInfo {
	c := make(map[BetKey]betInfo)
	add := func(key string, cat Category, nums ...int) {
		sorted := append([]int(nil), nums...)
		sort.Ints(sorted)
		covers := make(map[int]bool, len(sorted))
		for _, n := range sorted {
			covers[n] = true
		}
		c[BetKey(key)] = betInfo{category: cat, numbers: sorted, covers: covers}
	}

	for n := MinNumber; n <= MaxNumber; n++ {
		add(fmt.Sprintf("straight_%d", n), CategoryStraight, n)
	}

	// Layout is 12 rows of three: row r holds 3r+1, 3r+2, 3r+3.
	for n := 1; n <= MaxNumber; n++ {
		if n%3 != 0 {
			add(fmt.Sprintf("split_%d_%d", n, n+1), CategorySplit, n, n+1)
		}
		if n+3 <= MaxNumber {
			add(fmt.Sprintf("split_%d_%d", n, n+3), CategorySplit, n, n+3)
		}
	}

	for start := 1; start <= 34; start += 3 {
		add(fmt.Sprintf("street_%d", start), CategoryStreet, start, start+1, start+2)
	}

	for a := 1; a <= 32; a++ {
		if a%3 == 0 {
			continue
		}
		add(fmt.Sprintf("corner_%d_%d_%d_%d", a, a+1, a+3, a+4), CategoryCorner, a, a+1, a+3, a+4)
	}

	for first := 1; first <= 31; first += 3 {
		nums := make([]int, 0, 6)
		for n := first; n < first+6; n++ {
			nums = append(nums, n)
		}
		add(fmt.Sprintf("line_%d_%d", first, first+5), CategoryLine, nums...)
	}

	for col := 1; col <= 3; col++ {
		nums := make([]int, 0, 12)
		for n := col; n <= MaxNumber; n += 3 {
			nums = append(nums, n)
		}
		add(fmt.Sprintf("column_%d", col), CategoryColumn, nums...)
	}

	for dozen := 1; dozen <= 3; dozen++ {
		nums := make([]int, 0, 12)
		for n := (dozen-1)*12 + 1; n <= dozen*12; n++ {
			nums = append(nums, n)
		}
		add(fmt.Sprintf("dozen_%d", dozen), CategoryDozen, nums...)
	}

	var red, black, even, odd, low, high []int
	for n := 1; n <= MaxNumber; n++ {
		if ColorOf(n) == ColorRed {
			red = append(red, n)
		} else {
			black = append(black, n)
		}
		if n%2 == 0 {
			even = append(even, n)
		} else {
			odd = append(odd, n)
		}
		if n <= 18 {
			low = append(low, n)
		} else {
			high = append(high, n)
		}
	}
	add(string(BetRed), CategoryEvenMoney, red...)
	add(string(BetBlack), CategoryEvenMoney, black...)
	add(string(BetEven), CategoryEvenMoney, even...)
	add(string(BetOdd), CategoryEvenMoney, odd...)
	add(string(BetLow), CategoryEvenMoney, low...)
	add(string(BetHigh), CategoryEvenMoney, high...)

	return c
}

// ParseBetKey validates s against the catalog and returns it as a BetKey.
func ParseBetKey(s string) (BetKey, error) {
	key := BetKey(s)
	if _, ok := catalog[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidBetKey, s)
	}
	return key, nil
}

// StraightKey returns the straight-up bet key for n.
func StraightKey(n int) BetKey {
	return BetKey("straight_" + strconv.Itoa(n))
}

// Valid reports whether k is a known bet key.
func (k BetKey) Valid() bool {
	_, ok := catalog[k]
	return ok
}

// Category returns the bet category, or "" for unknown keys.
func (k BetKey) Category() Category {
	return catalog[k].category
}

// Multiplier returns the payout ratio for k, or 0 for unknown keys.
func (k BetKey) Multiplier() int64 {
	return k.Category().Multiplier()
}

// Numbers returns a copy of the numbers covered by k in ascending order.
func (k BetKey) Numbers() []int {
	info, ok := catalog[k]
	if !ok {
		return nil
	}
	return append([]int(nil), info.numbers...)
}

// Covers reports whether a win on n pays out on k.
func (k BetKey) Covers(n int) bool {
	return catalog[k].covers[n]
}

// AllBetKeys returns every admissible bet key, sorted.
func AllBetKeys() []BetKey {
	keys := make([]BetKey, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
