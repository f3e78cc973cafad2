package roulette

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Drawer produces the winning number for a round.
type Drawer interface {
	Draw() (int, error)
}

// DrawerFunc adapts a function to the Drawer interface.
type DrawerFunc func() (int, error)

// Draw calls f.
func (f DrawerFunc) Draw() (int, error) {
	return f()
}

// CryptoDrawer draws uniformly from 0..36 using crypto/rand.
type CryptoDrawer struct{}

var pockets = big.NewInt(MaxNumber + 1)

// Draw returns a uniformly distributed pocket.
func (CryptoDrawer) Draw() (int, error) {
	n, err := rand.Int(rand.Reader, pockets)
	if err != nil {
		return 0, fmt.Errorf("read random pocket: %w", err)
	}
	return int(n.Int64()), nil
}

// Clock is the single time source of a table.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}
