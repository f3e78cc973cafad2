package roulette

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		// Plain numbers and pairs
		{"17", "straight_17"},
		{"0", "straight_0"},
		{" 5 ", "straight_5"},
		{"17-18", "split_17_18"},
		{"18 / 17", "split_17_18"},

		// Explicit keys
		{"split_18_17", "split_17_18"},
		{"corner_21_20_18_17", "corner_17_18_20_21"},
		{"street_1_3", "street_1"},
		{"STRAIGHT_7", "straight_7"},
		{"even_money_red", "even_money_red"},

		// Columns
		{"2:1-1", "column_1"},
		{"2:1-3", "column_3"},
		{"col2", "column_2"},
		{"Column 3", "column_3"},

		// Dozens
		{"1_12", "dozen_1"},
		{"13-24", "dozen_2"},
		{"2nd 12", "dozen_2"},
		{"Dozen 3", "dozen_3"},
		{"primera docena", "dozen_1"},

		// Even money
		{"Red", "even_money_red"},
		{"negro", "even_money_black"},
		{"Par", "even_money_even"},
		{"Impar", "even_money_odd"},
		{"numeros impares", "even_money_odd"},
		{"1-18", "even_money_low"},
		{"19_36", "even_money_high"},
		{"Alto 19-36", "even_money_high"},

		// Number lists
		{"1,2,3", "street_1"},
		{"5 4 1 2", "corner_1_2_4_5"},
		{"31 32 33 34 35 36", "line_31_36"},
		{"10 11 12", "street_10"},
		{"11 12 14 15", "corner_11_12_14_15"},
		{"12, 15", "split_12_15"},
		{"1 12", "dozen_1"},

		// Unknown labels pass through
		{"lucky seven", "lucky_seven"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.label))
		})
	}
}

func TestNormalizeBetKey(t *testing.T) {
	key, err := NormalizeBetKey("Rojo")
	assert.NoError(t, err)
	assert.Equal(t, BetRed, key)

	_, err = NormalizeBetKey("17-19")
	assert.True(t, errors.Is(err, ErrInvalidBetKey))

	_, err = NormalizeBetKey("lucky seven")
	assert.True(t, errors.Is(err, ErrInvalidBetKey))
}

// Normalizing a canonical key returns it unchanged.
func TestNormalizeCanonicalProperty(t *testing.T) {
	keys := AllBetKeys()
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SampledFrom(keys).Draw(t, "key")
		if got := Normalize(string(key)); got != string(key) {
			t.Fatalf("Normalize(%q) = %q", key, got)
		}
	})
}
