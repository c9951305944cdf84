package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	// Alpaca credentials, shared between the paper and live endpoints
	AlpacaAPIKey    string
	AlpacaSecretKey string
	PaperBaseURL    string
	LiveBaseURL     string

	// TradingMode selects which venue the reconciler treats as the source
	// of truth: "paper" or "live".
	TradingMode string

	// Ledger database path
	DBPath string

	// Sync cycle interval
	SyncInterval time.Duration

	// Journal directory for per-day cycle logs
	JournalDir string

	// HTTP listen port
	Port int
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		AlpacaAPIKey:    os.Getenv("ALPACA_API_KEY"),
		AlpacaSecretKey: os.Getenv("ALPACA_SECRET_KEY"),
		PaperBaseURL:    getEnv("ALPACA_PAPER_URL", "https://paper-api.alpaca.markets"),
		LiveBaseURL:     getEnv("ALPACA_LIVE_URL", "https://api.alpaca.markets"),
		TradingMode:     getEnv("TRADING_MODE", "paper"),
		DBPath:          getEnv("DB_PATH", "./data/meridian.db"),
		JournalDir:      getEnv("JOURNAL_DIR", "./data/journal"),
	}

	intervalSec, err := getEnvInt("SYNC_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.SyncInterval = time.Duration(intervalSec) * time.Second

	port, err := getEnvInt("PORT", 8090)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and applies last-resort defaults.
func (c *Config) Validate() error {
	if c.AlpacaAPIKey == "" {
		return fmt.Errorf("ALPACA_API_KEY is required")
	}
	if c.AlpacaSecretKey == "" {
		return fmt.Errorf("ALPACA_SECRET_KEY is required")
	}
	if c.TradingMode != "paper" && c.TradingMode != "live" {
		return fmt.Errorf("TRADING_MODE must be 'paper' or 'live', got %q", c.TradingMode)
	}
	if c.SyncInterval < 5*time.Second {
		c.SyncInterval = 5 * time.Second
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %d", c.Port)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
