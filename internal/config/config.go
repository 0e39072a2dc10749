// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel slog.Level

	DatabaseURL string

	CORSOrigin          string
	SessionTTL          time.Duration
	SessionCookieSecure bool
	AuthRateLimit       float64

	JWTSecret         string
	PasswordResetTTL  time.Duration
	AppURL            string
	WalletPassBaseURL string

	RedisAddr    string
	KafkaBrokers []string

	StripeSecretKey string
	StripeCurrency  string

	SMTP SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether every field needed to dial the SMTP server is set.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.Port != "" && s.Username != "" && s.Password != "" && s.From != ""
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:               getEnv("ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       databaseURL(),
		CORSOrigin:        getEnv("CORS_ORIGIN", "http://localhost:3000"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AppURL:            strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		WalletPassBaseURL: strings.TrimRight(getEnv("WALLET_PASS_BASE_URL", "https://passes.dutydinar.local"), "/"),
		RedisAddr:         redisAddr(),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),
		StripeCurrency:    strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "168h")); err != nil {
		return nil, fmt.Errorf("parse SESSION_TTL: %w", err)
	}
	if cfg.SessionCookieSecure, err = strconv.ParseBool(getEnv("SESSION_COOKIE_SECURE", "false")); err != nil {
		return nil, fmt.Errorf("parse SESSION_COOKIE_SECURE: %w", err)
	}
	if cfg.AuthRateLimit, err = strconv.ParseFloat(getEnv("AUTH_RATE_LIMIT", "20"), 64); err != nil {
		return nil, fmt.Errorf("parse AUTH_RATE_LIMIT: %w", err)
	}
	minutes, err := strconv.Atoi(getEnv("PASSWORD_RESET_EXP_MINUTES", "15"))
	if err != nil || minutes <= 0 {
		return nil, fmt.Errorf("invalid PASSWORD_RESET_EXP_MINUTES %q", os.Getenv("PASSWORD_RESET_EXP_MINUTES"))
	}
	cfg.PasswordResetTTL = time.Duration(minutes) * time.Minute

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-only-secret"
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* variables.
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getEnv("DB_USER", "dutydinar"),
		getEnv("DB_PASSWORD", "dutydinar"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "dutydinar"),
	)
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getEnv("REDIS_PORT", "6379")
	}
	return "127.0.0.1:6379"
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
