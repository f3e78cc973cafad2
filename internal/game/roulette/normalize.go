package roulette

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	onlyNumberRe = regexp.MustCompile(`^(\d{1,2})$`)
	dashPairRe   = regexp.MustCompile(`^(\d{1,2})\s*[-/]\s*(\d{1,2})$`)
	explicitRe   = regexp.MustCompile(`^(straight|split|trio|street|corner|line|column|dozen|even_money)_`)
	twoToOneRe   = regexp.MustCompile(`^2:1-([123])$`)
	numberListRe = regexp.MustCompile(`^\d{1,2}(?:[,\s]+\d{1,2})+$`)
	digitRe      = regexp.MustCompile(`[123]`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// fixedLabels are table labels that map to exactly one key.
var fixedLabels = map[string]BetKey{
	"1_18":   BetLow,
	"1-18":   BetLow,
	"19_36":  BetHigh,
	"19-36":  BetHigh,
	"1_12":   "dozen_1",
	"13_24":  "dozen_2",
	"25_36":  "dozen_3",
	"1-12":   "dozen_1",
	"13-24":  "dozen_2",
	"25-36":  "dozen_3",
	"col1":   "column_1",
	"col2":   "column_2",
	"col3":   "column_3",
	"red":    BetRed,
	"black":  BetBlack,
	"even":   BetEven,
	"odd":    BetOdd,
	"low":    BetLow,
	"high":   BetHigh,
	"rojo":   BetRed,
	"negro":  BetBlack,
	"par":    BetEven,
	"impar":  BetOdd,
	"bajo":   BetLow,
	"alto":   BetHigh,
	"manque": BetLow,
	"passe":  BetHigh,
}

var dozenTokens = map[string]int{
	"1": 1, "1ra": 1, "1os": 1, "1er": 1, "1st": 1, "prim": 1, "primera": 1, "primer": 1, "first": 1,
	"2": 2, "2da": 2, "2os": 2, "2do": 2, "2nd": 2, "seg": 2, "segunda": 2, "segundo": 2, "second": 2,
	"3": 3, "3ra": 3, "3os": 3, "3er": 3, "3rd": 3, "ter": 3, "tercera": 3, "tercer": 3, "third": 3,
}

// Normalize maps a user-facing bet label to its canonical bet key string.
// Input that matches no known pattern is returned verbatim (whitespace folded
// to underscores) so that ParseBetKey rejects it visibly.
func Normalize(label string) string {
	raw := strings.TrimSpace(label)
	if raw == "" {
		return raw
	}
	k := spacesRe.ReplaceAllString(strings.ToLower(raw), " ")

	if key, ok := fixedLabels[k]; ok {
		return string(key)
	}

	if m := onlyNumberRe.FindStringSubmatch(k); m != nil {
		n, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("straight_%d", n)
	}

	if m := dashPairRe.FindStringSubmatch(k); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("split_%d_%d", min(a, b), max(a, b))
	}

	if explicitRe.MatchString(k) {
		return canonicalizeExplicit(strings.ReplaceAll(k, " ", "_"))
	}

	if m := twoToOneRe.FindStringSubmatch(k); m != nil {
		return "column_" + m[1]
	}

	// "impar" contains "par", so odd is checked first.
	switch {
	case strings.Contains(k, "impar"):
		return string(BetOdd)
	case strings.Contains(k, "negro"):
		return string(BetBlack)
	case strings.Contains(k, "rojo"):
		return string(BetRed)
	case strings.Contains(k, "alto"):
		return string(BetHigh)
	case strings.Contains(k, "bajo"):
		return string(BetLow)
	}

	// A number list that forms a real bet wins over the "12" dozen shorthand,
	// so "10 11 12" is a street while "1 12" stays the first dozen.
	isList := numberListRe.MatchString(k)
	if isList {
		if key := keyFromNumbers(k); key != "" && BetKey(key).Valid() {
			return key
		}
	}

	if strings.Contains(k, "docen") || strings.Contains(k, "dozen") || hasToken(k, "12") {
		if d := dozenOf(k); d > 0 {
			return fmt.Sprintf("dozen_%d", d)
		}
		return verbatim(raw)
	}

	if strings.Contains(k, "col") {
		if m := digitRe.FindString(k); m != "" {
			return "column_" + m
		}
		return verbatim(raw)
	}

	if isList {
		if key := keyFromNumbers(k); key != "" {
			return key
		}
	}

	return verbatim(raw)
}

// canonicalizeExplicit orders the numbers of an already prefixed key and folds
// the "street_<first>_<last>" form into "street_<first>".
func canonicalizeExplicit(k string) string {
	parts := strings.Split(k, "_")
	switch parts[0] {
	case "split", "corner":
		nums, ok := atoiAll(parts[1:])
		if !ok {
			return k
		}
		sort.Ints(nums)
		return parts[0] + "_" + joinInts(nums)
	case "street":
		if len(parts) == 3 {
			return "street_" + parts[1]
		}
	}
	return k
}

func keyFromNumbers(k string) string {
	nums, ok := atoiAll(strings.FieldsFunc(k, func(r rune) bool { return r == ',' || r == ' ' }))
	if !ok {
		return ""
	}
	sort.Ints(nums)
	switch len(nums) {
	case 2:
		return fmt.Sprintf("split_%d_%d", nums[0], nums[1])
	case 3:
		return fmt.Sprintf("street_%d", nums[0])
	case 4:
		return "corner_" + joinInts(nums)
	case 6:
		return fmt.Sprintf("line_%d_%d", nums[0], nums[5])
	}
	return ""
}

func dozenOf(k string) int {
	for _, tok := range strings.Fields(k) {
		if d, ok := dozenTokens[tok]; ok {
			return d
		}
	}
	return 0
}

func hasToken(k, tok string) bool {
	for _, f := range strings.Fields(k) {
		if f == tok {
			return true
		}
	}
	return false
}

func atoiAll(parts []string) ([]int, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		nums = append(nums, n)
	}
	return nums, true
}

func joinInts(nums []int) string {
	s := make([]string, len(nums))
	for i, n := range nums {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, "_")
}

func verbatim(raw string) string {
	return spacesRe.ReplaceAllString(raw, "_")
}

// NormalizeBetKey normalizes label and validates the result against the catalog.
func NormalizeBetKey(label string) (BetKey, error) {
	return ParseBetKey(Normalize(label))
}
