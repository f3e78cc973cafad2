package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roulette-engine/internal/game/roulette"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "main", cfg.Server.DefaultRoom)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Table.BettingDuration)
	assert.Equal(t, 10*time.Second, cfg.Table.SpinDuration)
	assert.Equal(t, 5*time.Second, cfg.Table.PayoutDuration)
	assert.Equal(t, 3, cfg.Table.MaxSettleAttempts)
	assert.True(t, cfg.Table.ColumnDozenExclusive)
	assert.Equal(t, int64(10000), cfg.Table.InitialBalance)
	assert.Equal(t, int64(1_000_000_000_000), cfg.Table.MaxBalance)
	assert.Equal(t, int64(roulette.DefaultMaxStake), cfg.Table.MaxStake)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Server.HandlerTimeout)

	loc, err := cfg.Server.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLocation(t *testing.T) {
	s := ServerConfig{Timezone: "Not/AZone"}
	_, err := s.Location()
	assert.Error(t, err)

	s.Timezone = ""
	loc, err := s.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  address: ":9000"
  allowed_origins:
    - "https://casino.example"
table:
  betting_duration: 20s
  column_dozen_exclusive: false
database:
  enabled: true
  host: db.internal
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("TABLE_SPIN_DURATION", "3s")
	t.Setenv("DATABASE_PORT", "6543")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 20*time.Second, cfg.Table.BettingDuration)
	assert.Equal(t, 3*time.Second, cfg.Table.SpinDuration)
	assert.False(t, cfg.Table.ColumnDozenExclusive)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "postgres://roulette:@db.internal:6543/roulette?sslmode=disable", cfg.Database.DSN())
	assert.True(t, cfg.Server.IsOriginAllowed("https://casino.example"))
	assert.False(t, cfg.Server.IsOriginAllowed("https://evil.example"))
}

func TestLoadRejectsInvalidTable(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"no settle attempts", "TABLE_MAX_SETTLE_ATTEMPTS", "0"},
		{"zero stake limit", "TABLE_MAX_STAKE", "0"},
		{"stake limit past payout range", "TABLE_MAX_STAKE", "9223372036854775807"},
		{"max balance below initial", "TABLE_MAX_BALANCE", "100"},
		{"max balance past seat range", "TABLE_MAX_BALANCE", "9223372036854775807"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty allowlist", nil, "https://any.example", true},
		{"wildcard", []string{"*"}, "https://any.example", true},
		{"exact match", []string{"https://a.example"}, "https://a.example", true},
		{"case insensitive", []string{"https://A.example"}, "https://a.example", true},
		{"not listed", []string{"https://a.example"}, "https://b.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ServerConfig{AllowedOrigins: tt.allowed}
			assert.Equal(t, tt.want, s.IsOriginAllowed(tt.origin))
		})
	}
}
