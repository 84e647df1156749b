// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway
	StripeAPIKey       string // Empty means the no-op development gateway is used
	CheckoutSuccessURL string // Where Stripe Checkout redirects after payment
	CheckoutCancelURL  string

	// Notifications
	NotifyAPIURL string
	NotifyAPIKey string
	EmailFrom    string

	// Dispute escalation
	AdminEmails []string // Admins eligible for escalated disputes

	// Security
	WebhookSecret string // HMAC secret for inbound payment webhooks
	AdminSecret   string // Admin API secret
	RateLimitRPM  int

	// Tracing
	OTLPEndpoint string // Optional OTLP gRPC endpoint (e.g. "localhost:4317")
}

const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultEmailFrom = "payments@talentafro.example"
	DefaultRateLimit = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeAPIKey:       os.Getenv("STRIPE_API_KEY"),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "https://talentafro.example/payments/success"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "https://talentafro.example/payments/cancelled"),
		NotifyAPIURL:       os.Getenv("NOTIFY_API_URL"),
		NotifyAPIKey:       os.Getenv("NOTIFY_API_KEY"),
		EmailFrom:          getEnv("EMAIL_FROM", DefaultEmailFrom),
		AdminEmails:        splitList(os.Getenv("ADMIN_EMAILS")),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:       os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}

	if c.IsProduction() {
		if c.StripeAPIKey == "" {
			return fmt.Errorf("STRIPE_API_KEY is required in production")
		}
		if c.AdminSecret == "" {
			return fmt.Errorf("ADMIN_SECRET is required in production")
		}
	}

	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
