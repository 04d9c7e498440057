/*
Package config loads the bonus service configuration.

PURPOSE:
  One Config struct for everything the server and scheduler need. Values
  come from, in increasing priority:
  1. Built-in defaults (setDefaults)
  2. config.yaml in ./configs or the working directory, or an explicit path
  3. A .env file in the working directory
  4. BONUS_* environment variables (BONUS_SERVER_PORT, BONUS_FORECAST_MULTIPLIER)

EXAMPLE config.yaml:
  server:
    port: 8080
    cors_origins: ["http://localhost:5173"]
  database:
    path: ./data/bonus.db
  logging:
    level: info
    format: json
  forecast:
    enabled: true
    schedule: "@daily"
    multiplier: 100
  cache:
    formula_ttl: 10m

SEE ALSO:
  - cmd/server/main.go: Loads config and wires components
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the main application configuration struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ForecastConfig drives the scheduled payout forecast.
type ForecastConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Schedule   string  `mapstructure:"schedule"`   // cron spec or descriptor (@daily)
	Multiplier float64 `mapstructure:"multiplier"` // 0-100
}

// MultiplierDecimal returns the multiplier as a decimal.
func (f ForecastConfig) MultiplierDecimal() decimal.Decimal {
	return decimal.NewFromFloat(f.Multiplier)
}

type CacheConfig struct {
	FormulaTTL time.Duration `mapstructure:"formula_ttl"`
}

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in ./configs and the working directory and is optional.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BONUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.path", "./data/bonus.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("forecast.enabled", true)
	v.SetDefault("forecast.schedule", "@daily")
	v.SetDefault("forecast.multiplier", 100)
	v.SetDefault("cache.formula_ttl", 10*time.Minute)
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if cfg.Forecast.Multiplier < 0 || cfg.Forecast.Multiplier > 100 {
		return fmt.Errorf("forecast.multiplier %v must be between 0 and 100", cfg.Forecast.Multiplier)
	}
	if cfg.Forecast.Enabled {
		if _, err := cron.ParseStandard(cfg.Forecast.Schedule); err != nil {
			return fmt.Errorf("forecast.schedule %q: %w", cfg.Forecast.Schedule, err)
		}
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level)
	}
	return nil
}
