// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"roulette-engine/internal/game/roulette"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Table    TableConfig    `mapstructure:"table"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds the HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	DefaultRoom     string        `mapstructure:"default_room"`
	Timezone        string        `mapstructure:"timezone"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// TableConfig holds round timing and house rules shared by every room.
type TableConfig struct {
	BettingDuration      time.Duration `mapstructure:"betting_duration"`
	SpinDuration         time.Duration `mapstructure:"spin_duration"`
	PayoutDuration       time.Duration `mapstructure:"payout_duration"`
	MaxSettleAttempts    int           `mapstructure:"max_settle_attempts"`
	PersistTimeout       time.Duration `mapstructure:"persist_timeout"`
	ColumnDozenExclusive bool          `mapstructure:"column_dozen_exclusive"`
	HistorySize          int           `mapstructure:"history_size"`
	MaxPlayers           int           `mapstructure:"max_players"`
	InitialBalance       int64         `mapstructure:"initial_balance"`
	MaxBalance           int64         `mapstructure:"max_balance"`
	MaxStake             int64         `mapstructure:"max_stake"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. TABLE_BETTING_DURATION, DATABASE_HOST, SERVER_ADDRESS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can provide everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	t := c.Table
	if t.BettingDuration <= 0 || t.SpinDuration <= 0 || t.PayoutDuration <= 0 {
		return fmt.Errorf("invalid table config: phase durations must be positive")
	}
	if t.MaxSettleAttempts < 1 {
		return fmt.Errorf("invalid table config: max_settle_attempts must be at least 1")
	}
	if t.InitialBalance < 0 {
		return fmt.Errorf("invalid table config: initial_balance cannot be negative")
	}
	if t.MaxBalance < t.InitialBalance || t.MaxBalance > roulette.MaxSeatBalance {
		return fmt.Errorf("invalid table config: max_balance must be between initial_balance and %d", int64(roulette.MaxSeatBalance))
	}
	if t.MaxStake < 1 || t.MaxStake > roulette.MaxStakeLimit {
		return fmt.Errorf("invalid table config: max_stake must be between 1 and %d", int64(roulette.MaxStakeLimit))
	}
	if c.Server.DefaultRoom == "" {
		return fmt.Errorf("invalid server config: default_room cannot be empty")
	}
	if _, err := c.Server.Location(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}

// Location resolves the timezone used for daily rankings.
func (c *ServerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsOriginAllowed checks an Origin header against the allowlist.
func (c *ServerConfig) IsOriginAllowed(origin string) bool {
	// Empty allowlist means all origins are allowed
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.handler_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.default_room", "main")
	v.SetDefault("server.timezone", "UTC")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "roulette")
	v.SetDefault("database.name", "roulette")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Table defaults
	v.SetDefault("table.betting_duration", "30s")
	v.SetDefault("table.spin_duration", "10s")
	v.SetDefault("table.payout_duration", "5s")
	v.SetDefault("table.max_settle_attempts", 3)
	v.SetDefault("table.persist_timeout", "5s")
	v.SetDefault("table.column_dozen_exclusive", true)
	v.SetDefault("table.history_size", 10)
	v.SetDefault("table.max_players", 50)
	v.SetDefault("table.initial_balance", 10000)
	v.SetDefault("table.max_balance", 1_000_000_000_000)
	v.SetDefault("table.max_stake", roulette.DefaultMaxStake)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}
