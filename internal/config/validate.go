package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// LLM backend
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("LLM_TEMPERATURE must be 0-2, got %g", c.LLM.Temperature))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, "LLM_TIMEOUT must be positive")
	}

	// Quota
	if c.Quota.DefaultMonthlyLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_DEFAULT_LIMIT must be positive, got %d", c.Quota.DefaultMonthlyLimit))
	}
	if c.Quota.Store != StorePostgres && c.Quota.Store != StoreRedis {
		errs = append(errs, fmt.Sprintf("PROFILE_STORE must be %q or %q, got %q", StorePostgres, StoreRedis, c.Quota.Store))
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Identity provider secret: warn only
	if c.Auth.JWTSecret == "" {
		slog.Warn("AUTH_JWT_SECRET is empty, userId from request bodies is trusted as-is")
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 characters")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
