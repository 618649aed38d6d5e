package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	Env            string
	ServiceVersion string
	AllowedOrigins []string

	// Credential store
	DatabaseURL      string
	CredentialSecret string

	// Redis holds last-known prices; empty URL disables it
	RedisURL      string
	RedisPassword string

	// Bearer auth: a static token (plain, sha256 digest or bcrypt of the digest) and/or JWT service tokens
	AuthToken     string
	AuthTokenHash string
	JWTSecret     string

	// Pricing
	PricingEnabled   bool
	PricingTimeout   time.Duration
	CoinGeckoAPIKey  string
	CoinGeckoBaseURL string

	// Balance fetching
	FetchTimeout       time.Duration
	FetchRetryAttempts int
	FetchConcurrency   int
	VenueRateLimit     float64
	VenueRateBurst     int

	// TopologyPath points at the YAML file with venues, chains and ledger layouts
	TopologyPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		ServiceVersion:     getEnv("SERVICE_VERSION", "1.0.0"),
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CredentialSecret:   getEnv("CREDENTIAL_SECRET", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		AuthToken:          getEnv("AUTH_TOKEN", ""),
		AuthTokenHash:      getEnv("AUTH_TOKEN_HASH", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		PricingEnabled:     getEnvAsBool("PRICING_ENABLED", false),
		PricingTimeout:     getEnvAsDuration("PRICING_TIMEOUT", 5*time.Second),
		CoinGeckoAPIKey:    getEnv("COINGECKO_API_KEY", ""),
		CoinGeckoBaseURL:   getEnv("COINGECKO_BASE_URL", "https://pro-api.coingecko.com/api/v3"),
		FetchTimeout:       getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchRetryAttempts: getEnvAsInt("FETCH_RETRY_ATTEMPTS", 3),
		FetchConcurrency:   getEnvAsInt("FETCH_CONCURRENCY", 16),
		VenueRateLimit:     getEnvAsFloat("VENUE_RATE_LIMIT", 10),
		VenueRateBurst:     getEnvAsInt("VENUE_RATE_BURST", 5),
		TopologyPath:       getEnv("TOPOLOGY_FILE", "config/topology.yml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.CredentialSecret == "" {
		return fmt.Errorf("CREDENTIAL_SECRET is required")
	}

	if c.AuthToken == "" && c.AuthTokenHash == "" {
		return fmt.Errorf("AUTH_TOKEN or AUTH_TOKEN_HASH is required")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.PricingEnabled && c.CoinGeckoAPIKey == "" {
		return fmt.Errorf("COINGECKO_API_KEY is required when PRICING_ENABLED is set")
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}

	if c.FetchRetryAttempts < 1 {
		c.FetchRetryAttempts = 1
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
