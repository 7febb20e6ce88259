// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings for the issue tracker server.
type Config struct {
	Port         string
	DatabaseURL  string
	JWTSecret    string
	TokenTTL     time.Duration
	BcryptCost   int
	CookieSecure bool
	LogLevel     slog.Level

	// Empty RateLimitRedisAddr keeps rate limiting in process.
	RateLimitRedisAddr     string
	RateLimitRedisPassword string
	RateLimitRedisDB       int
	AuthRateLimitPerMinute int
}

// Load builds a Config from environment variables and validates it.
func Load() (Config, error) {
	cfg := Config{
		Port:                   GetString("PORT", "5000"),
		DatabaseURL:            GetString("DATABASE_URL", "issues.db"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		TokenTTL:               GetDuration("TOKEN_TTL", time.Hour),
		BcryptCost:             GetInt("BCRYPT_COST", 12),
		CookieSecure:           GetBool("COOKIE_SECURE", true),
		RateLimitRedisAddr:     strings.TrimSpace(GetString("RATE_LIMIT_REDIS_ADDR", "")),
		RateLimitRedisPassword: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:       GetInt("RATE_LIMIT_REDIS_DB", 0),
		AuthRateLimitPerMinute: GetInt("AUTH_RATE_LIMIT_PER_MINUTE", 20),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(GetString("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot safely start without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters for HMAC-SHA256 security")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 14 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 14, got %d", c.BcryptCost)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.AuthRateLimitPerMinute <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.AuthRateLimitPerMinute)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %w", err)
	}
	return nil
}

// UsesPostgres reports whether DatabaseURL points at PostgreSQL rather than a
// SQLite file.
func (c Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			slog.Warn("invalid integer in environment, using default", "key", key, "error", err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			slog.Warn("invalid boolean in environment, using default", "key", key, "error", err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetDuration accepts Go duration strings ("90m") or bare seconds ("3600").
func GetDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
	return fallback
}
