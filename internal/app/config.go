package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Refresh token store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// DefaultSeedUsers is used in the dev environment when SEED_USERS is unset.
const DefaultSeedUsers = "admin@example.com:admin:users.list:admin;user@example.com:user::editor"

type Config struct {
	Addr   string // HTTP listen address (SESSIOND_ADDR, else ":" + PORT) (default: :8080)
	Issuer string // Issuer claim for access tokens (default: sessiond)

	AccessTokenTTL  time.Duration // Lifetime of access tokens (default: 15m)
	RefreshTokenTTL time.Duration // Lifetime of refresh tokens (default: 30 days)

	Store        string // Refresh token store: memory, sqlite, redis (default: memory)
	DatabaseFile string // SQLite file for the sqlite store (default: ./sessiond.db)
	RedisAddr    string // Redis address for the redis store (default: localhost:6379)
	SeedUsers    string // "email:password:perm,perm:role,role;..." accounts created at startup

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired token sweep interval for sqlite (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Addr:                 os.Getenv("SESSIOND_ADDR"),
		Issuer:               getEnvOrDefault("SESSIOND_ISSUER", "sessiond"),
		AccessTokenTTL:       getEnvDurationOrDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:      getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		Store:                getEnvOrDefault("SESSIOND_STORE", StoreMemory),
		DatabaseFile:         getEnvOrDefault("SESSIOND_DATABASE_FILE", "sessiond.db"),
		RedisAddr:            getEnvOrDefault("SESSIOND_REDIS_ADDR", "localhost:6379"),
		SeedUsers:            os.Getenv("SEED_USERS"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", getEnvIntOrDefault("PORT", 8080))
	}

	if cfg.SeedUsers == "" && cfg.Env == "dev" {
		cfg.SeedUsers = DefaultSeedUsers
	}

	return cfg
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown SESSIOND_STORE %q (want memory, sqlite or redis)", c.Store)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)",
			c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
