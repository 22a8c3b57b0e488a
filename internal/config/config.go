// Package config loads server settings from defaults, an optional .env file,
// the environment and command-line flags, in that order.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Addr               string
	DBDriver           string
	DBDSN              string
	SessionSecret      string
	SessionIdleTimeout time.Duration
	SecureCookie       bool
	LogLevel           string
	LogFormat          string
	AdminUser          string
	AdminPassword      string

	// SecretGenerated is set when no SESSION_SECRET was provided and a
	// random one was created. Sessions then do not survive a restart.
	SecretGenerated bool
}

// Load builds a Config. envFile is read if it exists; values already in the
// environment win over it. args are parsed as flags and win over both.
func Load(args []string, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	idle, err := time.ParseDuration(getEnv("SESSION_IDLE_TIMEOUT", "20m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT: %w", err)
	}
	secure, err := strconv.ParseBool(getEnv("COOKIE_SECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid COOKIE_SECURE: %w", err)
	}

	cfg := &Config{
		Addr:               ":" + getEnv("PORT", "8080"),
		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DBDSN:              getEnv("DB_DSN", "users.db"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		SessionIdleTimeout: idle,
		SecureCookie:       secure,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		AdminUser:          os.Getenv("ADMIN_USER"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&cfg.DBDSN, "db", cfg.DBDSN, "database DSN or SQLite file path")
	fs.DurationVar(&cfg.SessionIdleTimeout, "idle-timeout", cfg.SessionIdleTimeout, "session idle expiry")
	fs.BoolVar(&cfg.SecureCookie, "secure-cookie", cfg.SecureCookie, "mark session cookie Secure")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json or text)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return nil, fmt.Errorf("session idle timeout must be positive")
	}

	if cfg.SessionSecret == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
		cfg.SecretGenerated = true
	}

	return cfg, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
