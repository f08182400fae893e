package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// DriverSQLite and DriverPostgres are the supported relational store drivers.
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	// bcryptPrefix is the common prefix of every bcrypt hash ($2a$, $2b$, $2y$).
	bcryptPrefix = "$2"

	defaultDataDir = ".drivesync"
)

// Config holds all environment-based configuration for drivesync.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogDir, when set, receives a rotating copy of the log output.
	LogDir string `env:"LOG_DIR"`

	// Relational store holding clients, cases, documents and sync runs.
	// DatabaseURL defaults to ~/.drivesync/drivesync.db for sqlite3.
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite3"`
	DatabaseURL    string `env:"DATABASE_URL"`

	// StatePath is the bbolt file holding tenant credentials and run
	// leases. Defaults to ~/.drivesync/state.db.
	StatePath string `env:"STATE_PATH"`

	// GoogleCredentialsFile is an OAuth client or service account JSON.
	// Required for OAuth token refresh; a stored access token alone is
	// used as-is when this is empty.
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE"`

	// Classification conventions.
	UnclassifiedFolderName string `env:"UNCLASSIFIED_FOLDER_NAME" envDefault:"Documents non classés"`
	ClassifyRulesFile      string `env:"CLASSIFY_RULES_FILE"`

	// Run tuning.
	PageSize   int64         `env:"SYNC_PAGE_SIZE" envDefault:"100"`
	RunTimeout time.Duration `env:"SYNC_RUN_TIMEOUT" envDefault:"30m"`
	Interval   time.Duration `env:"SYNC_INTERVAL" envDefault:"0s"`
	LeaseTTL   time.Duration `env:"SYNC_LEASE_TTL" envDefault:"1h"`

	// Ops HTTP surface, for example ":8095". Empty disables it.
	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR"`
	OpsAPIKeys     string `env:"OPS_API_KEYS"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DatabaseURL != "" && c.StatePath != "" {
		return nil
	}

	dir, err := DefaultDataDir()
	if err != nil {
		return err
	}

	if c.DatabaseURL == "" && c.DatabaseDriver == DriverSQLite {
		c.DatabaseURL = filepath.Join(dir, "drivesync.db")
	}

	if c.StatePath == "" {
		c.StatePath = filepath.Join(dir, "state.db")
	}

	return nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for driver %q", c.DatabaseDriver)
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be positive")
	}

	if c.RunTimeout < 0 || c.Interval < 0 || c.LeaseTTL <= 0 {
		return fmt.Errorf("SYNC_RUN_TIMEOUT and SYNC_INTERVAL must not be negative, SYNC_LEASE_TTL must be positive")
	}

	if strings.TrimSpace(c.UnclassifiedFolderName) == "" {
		return fmt.Errorf("UNCLASSIFIED_FOLDER_NAME must not be empty")
	}

	// The ops API triggers runs, so it is never served unauthenticated.
	if c.HTTPListenAddr != "" && c.OpsAPIKeys == "" {
		return fmt.Errorf("OPS_API_KEYS is required when HTTP_LISTEN_ADDR is set")
	}

	if _, err := c.ParseOpsAPIKeys(); err != nil {
		return err
	}

	return nil
}

// DefaultDataDir returns ~/.drivesync, the default home of the SQLite
// database and the state file.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, defaultDataDir), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIKeyEntry is one ops API user and the bcrypt hash of their key.
type APIKeyEntry struct {
	UserID string
	Hash   string
}

// ParseOpsAPIKeys parses the OPS_API_KEYS string.
// Format: "user1:$2a$10$...,user2:$2a$10$..."
func (c *Config) ParseOpsAPIKeys() ([]APIKeyEntry, error) {
	if c.OpsAPIKeys == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.OpsAPIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		hash := pair[idx+1:]
		if userID == "" || hash == "" {
			return nil, fmt.Errorf("empty user or hash in entry %d", len(entries)+1)
		}

		if !strings.HasPrefix(hash, bcryptPrefix) {
			return nil, fmt.Errorf("API key for %q must be a bcrypt hash (see `drivesync hash-key`)", userID)
		}

		if _, dup := seen[userID]; dup {
			return nil, fmt.Errorf("duplicate user %q in OPS_API_KEYS", userID)
		}

		seen[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Hash: hash})
	}

	return entries, nil
}
