// Package config loads server settings from an optional YAML file, a .env
// file and MAEJEOM_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/maejeom/market-game/internal/gameerr"
)

// EnvPrefix prefixes every environment override, e.g. MAEJEOM_GAME_SEED.
const EnvPrefix = "MAEJEOM"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GameConfig struct {
	Horizon    int    `mapstructure:"horizon"`
	Endowment  string `mapstructure:"endowment"`
	Seed       int64  `mapstructure:"seed"`
	RandomSeed bool   `mapstructure:"random_seed"`
	// StartDate is the date of day 1 (YYYY-MM-DD); empty means today.
	StartDate string `mapstructure:"start_date"`
	// MaxSessions caps the sessions held in memory; 0 disables the cap.
	MaxSessions int `mapstructure:"max_sessions"`
}

type CalendarConfig struct {
	// File is a YAML event schedule; empty uses the built-in school calendar.
	File string `mapstructure:"file"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the configuration. path may be empty to skip the YAML file.
// A missing .env file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("game.horizon", 30)
	v.SetDefault("game.endowment", "1000000")
	v.SetDefault("game.seed", 42)
	v.SetDefault("game.random_seed", false)
	v.SetDefault("game.start_date", "")
	v.SetDefault("game.max_sessions", 1000)
	v.SetDefault("calendar.file", "")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "30s")
	v.SetDefault("log.level", "info")

	// Unprefixed names used by common deployment tooling.
	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("redis.url", EnvPrefix+"_REDIS_URL", "REDIS_URL")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, gameerr.New(gameerr.CodeConfig, "read %s: %v", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, gameerr.New(gameerr.CodeConfig, "decode config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	var errs []error
	if c.Game.Horizon <= 0 {
		errs = append(errs, fmt.Errorf("game.horizon must be positive, got %d", c.Game.Horizon))
	}
	if e, err := decimal.NewFromString(c.Game.Endowment); err != nil {
		errs = append(errs, fmt.Errorf("game.endowment %q is not a number", c.Game.Endowment))
	} else if e.IsNegative() {
		errs = append(errs, fmt.Errorf("game.endowment must not be negative, got %s", e))
	}
	if c.Game.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("game.max_sessions must not be negative, got %d", c.Game.MaxSessions))
	}
	if c.Game.StartDate != "" {
		if _, err := time.Parse(time.DateOnly, c.Game.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("game.start_date %q is not YYYY-MM-DD", c.Game.StartDate))
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &gameerr.Error{Code: gameerr.CodeConfig, Msg: "invalid configuration", Err: errors.Join(errs...)}
	}
	return nil
}

// Endowment returns the starting cash. Call after Validate.
func (c Config) Endowment() decimal.Decimal {
	return decimal.RequireFromString(c.Game.Endowment)
}

// StartDate returns the configured date of day 1, or ok=false for today.
func (c Config) StartDate() (t time.Time, ok bool) {
	if c.Game.StartDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, c.Game.StartDate)
	return t, err == nil
}

// SlogLevel maps log.level to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}
