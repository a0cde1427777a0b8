// Package config loads application configuration.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read before the environment; existing variables win.
const DefaultEnvFile = ".env"

// Load reads configuration from envFile and the environment, applies
// defaults and validates the result. Keys map to variables with dots
// replaced by underscores, e.g. store.driver -> STORE_DRIVER.
func Load(envFile string) (*Config, error) {
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "leave.db")
	v.SetDefault("store.seed_demo", false)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("leave.annual_allotment", 20)
	v.SetDefault("leave.default_balance", 20)
	v.SetDefault("leave.overlap_ignores_closed", false)

	v.SetDefault("ratelimit.rps", 10)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"server.port",
		"server.shutdown_timeout",
		"store.driver",
		"store.sqlite_path",
		"store.seed_demo",
		"postgres.dsn",
		"postgres.max_conns",
		"auth.jwt_secret",
		"leave.annual_allotment",
		"leave.default_balance",
		"leave.overlap_ignores_closed",
		"ratelimit.rps",
		"ratelimit.burst",
		"cors.allowed_origins",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
