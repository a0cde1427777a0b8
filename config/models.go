package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Leave     LeaveConfig     `mapstructure:"leave"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// Validate ensures required fields are present and consistent.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("store.driver must be one of sqlite, postgres, memory: got %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required when store.driver is postgres")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Leave.AnnualAllotment <= 0 {
		return errors.New("leave.annual_allotment must be positive")
	}
	if c.Leave.DefaultBalance < 0 {
		return errors.New("leave.default_balance cannot be negative")
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port is required")
	}
	return nil
}

// ServerAddr returns the listen address.
func (c Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// SeedDemo registers the demo directory on startup when it is empty.
	SeedDemo bool `mapstructure:"seed_demo"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LeaveConfig holds leave accounting settings, in days.
type LeaveConfig struct {
	AnnualAllotment      float64 `mapstructure:"annual_allotment"`
	DefaultBalance       float64 `mapstructure:"default_balance"`
	OverlapIgnoresClosed bool    `mapstructure:"overlap_ignores_closed"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
