package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hotchain/hotledger/internal/asset"
)

const (
	defaultAppName        = "hotledger"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultTokenTTL       = 15 * time.Minute
	defaultContract       = "hot.token"
	defaultStakeAccount   = "hot.stake"
	defaultCoreSymbol     = "6,HOT"
	defaultBatchSize      = 8
	defaultSettleInterval = 30 * time.Second
	defaultSettleMaxSteps = 64
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	TokenSecret string
	TokenTTL    time.Duration

	ContractAccount string
	StakeAccount    string
	// ContractSecret and StakeSecret, when set, provision the reserved
	// accounts at startup.
	ContractSecret string
	StakeSecret    string
	CoreSymbol     asset.Symbol
	BatchSize      int
	SettleInterval time.Duration
	SettleMaxSteps int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		TokenSecret:     os.Getenv("TOKEN_SECRET"),
		ContractAccount: getEnv("CONTRACT_ACCOUNT", defaultContract),
		StakeAccount:    getEnv("STAKE_ACCOUNT", defaultStakeAccount),
		ContractSecret:  os.Getenv("CONTRACT_SECRET"),
		StakeSecret:     os.Getenv("STAKE_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = getDuration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.SettleInterval, err = getDuration("SETTLE_INTERVAL", defaultSettleInterval); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = getInt("BONUS_BATCH_SIZE", defaultBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.SettleMaxSteps, err = getInt("SETTLE_MAX_STEPS", defaultSettleMaxSteps); err != nil {
		return Config{}, err
	}
	if cfg.CoreSymbol, err = asset.ParseSymbol(getEnv("CORE_SYMBOL", defaultCoreSymbol)); err != nil {
		return Config{}, fmt.Errorf("invalid CORE_SYMBOL: %w", err)
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("BONUS_BATCH_SIZE must be positive")
	}

	if cfg.IsDevelopment() {
		if cfg.TokenSecret == "" {
			cfg.TokenSecret = "dev-secret"
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("TOKEN_SECRET must be set")
	}

	return cfg, nil
}

// IsDevelopment reports whether in-memory fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration reads KEY_SECONDS as whole seconds, else KEY as a Go duration.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
