package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Identity holds all configuration for the identity service
type Identity struct {
	Port string
	Env  string

	DatabaseURL string

	// JWTSecret signs external (end-user) tokens
	JWTSecret string
	// InternalJWTSecret verifies internal service-to-service tokens
	InternalJWTSecret string

	// AccessTokenTTL is the validity window of external tokens
	AccessTokenTTL time.Duration
}

// Ledger holds all configuration for the ledger service
type Ledger struct {
	Port string
	Env  string

	DatabaseURL string

	// RedisURL enables the idempotency replay cache when set
	RedisURL      string
	RedisPassword string

	// InternalJWTSecret signs the internal tokens minted for identity calls
	InternalJWTSecret string
	// IdentityURL is the base URL of the identity service
	IdentityURL string

	// Write protocol knobs
	StatementTimeout time.Duration
	LockTimeout      time.Duration
	MaxWriteAttempts int

	// SweepInterval is how often expired idempotency keys are reclaimed
	SweepInterval time.Duration
}

// LoadIdentity loads identity service configuration from environment variables
func LoadIdentity() (*Identity, error) {
	cfg := &Identity{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		InternalJWTSecret: getEnv("INTERNAL_JWT_SECRET", ""),
		AccessTokenTTL:    getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required identity configuration is present
func (c *Identity) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.InternalJWTSecret == "" {
		return fmt.Errorf("INTERNAL_JWT_SECRET is required")
	}

	if c.JWTSecret == c.InternalJWTSecret {
		return fmt.Errorf("JWT_SECRET and INTERNAL_JWT_SECRET must differ")
	}

	return nil
}

// LoadLedger loads ledger service configuration from environment variables
func LoadLedger() (*Ledger, error) {
	cfg := &Ledger{
		Port:              getEnv("PORT", "8081"),
		Env:               getEnv("ENV", "development"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		InternalJWTSecret: getEnv("INTERNAL_JWT_SECRET", ""),
		IdentityURL:       getEnv("IDENTITY_URL", ""),
		StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 10*time.Second),
		LockTimeout:       getEnvAsDuration("DB_LOCK_TIMEOUT", 5*time.Second),
		MaxWriteAttempts:  getEnvAsInt("MAX_WRITE_ATTEMPTS", 10),
		SweepInterval:     getEnvAsDuration("IDEMPOTENCY_SWEEP_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required ledger configuration is present
func (c *Ledger) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.InternalJWTSecret == "" {
		return fmt.Errorf("INTERNAL_JWT_SECRET is required")
	}

	if c.IdentityURL == "" {
		return fmt.Errorf("IDENTITY_URL is required")
	}

	if c.MaxWriteAttempts < 1 {
		return fmt.Errorf("MAX_WRITE_ATTEMPTS must be at least 1")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Identity) IsProduction() bool { return c.Env == "production" }

// IsProduction returns true if running in production mode
func (c *Ledger) IsProduction() bool { return c.Env == "production" }

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
