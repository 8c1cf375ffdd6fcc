// ABOUTME: Configuration loading and parsing for opentrack-bot
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, duration parsing and env overrides

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Database drivers accepted in database.driver.
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCgo     = "sqlite3" // mattn/go-sqlite3, needs cgo
)

// Environment variables that override file values.
const (
	EnvBotToken     = "BOT_TOKEN"
	EnvAdminID      = "ADMIN_ID"
	EnvFreeRequests = "FREE_REQUESTS"
	EnvDBPath       = "OPENTRACK_DB_PATH"
)

// Config represents the complete opentrack-bot configuration
type Config struct {
	Bot       BotConfig       `yaml:"bot" toml:"bot"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Frontends FrontendsConfig `yaml:"frontends" toml:"frontends"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// BotConfig holds quota and dialog settings
type BotConfig struct {
	AdminID      string `yaml:"admin_id" toml:"admin_id"`
	FreeRequests int    `yaml:"free_requests" toml:"free_requests"`
	IdleSearch   bool   `yaml:"idle_search" toml:"idle_search"` // free generic search for text sent outside a category

	RefillWindow   time.Duration `yaml:"-" toml:"-"`
	RefillInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RefillWindowRaw   string `yaml:"refill_window" toml:"refill_window"`
	RefillIntervalRaw string `yaml:"refill_interval" toml:"refill_interval"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// FrontendsConfig holds configuration for all chat frontends
type FrontendsConfig struct {
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
	Matrix   MatrixConfig   `yaml:"matrix" toml:"matrix"`
}

// TelegramConfig holds Telegram Bot API configuration
type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled" toml:"enabled"`
	Token    string  `yaml:"token" toml:"token"`
	SendRate float64 `yaml:"send_rate" toml:"send_rate"` // messages per second
	Debug    bool    `yaml:"debug" toml:"debug"`

	PollTimeout    time.Duration `yaml:"-" toml:"-"`
	PollTimeoutRaw string        `yaml:"poll_timeout" toml:"poll_timeout"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled"`
	Homeserver   string   `yaml:"homeserver" toml:"homeserver"`
	UserID       string   `yaml:"user_id" toml:"user_id"`
	AccessToken  string   `yaml:"access_token" toml:"access_token"`
	AllowedRooms []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultDataDir returns $XDG_DATA_HOME/opentrack, falling back to
// ~/.local/share/opentrack.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "opentrack")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "opentrack")
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			FreeRequests:      3,
			IdleSearch:        true,
			RefillWindowRaw:   "24h",
			RefillIntervalRaw: "1h",
		},
		Database: DatabaseConfig{
			Driver: DriverModernc,
			Path:   filepath.Join(DefaultDataDir(), "opentrack.db"),
		},
		Frontends: FrontendsConfig{
			Telegram: TelegramConfig{
				SendRate:       25,
				PollTimeoutRaw: "60s",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// BOT_TOKEN, ADMIN_ID and FREE_REQUESTS variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// FromEnv builds a configuration from defaults and environment variables
// only. Telegram is enabled when BOT_TOKEN is set.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	if token := os.Getenv(EnvBotToken); token != "" {
		cfg.Frontends.Telegram.Token = token
		cfg.Frontends.Telegram.Enabled = true
	}

	if admin := os.Getenv(EnvAdminID); admin != "" {
		cfg.Bot.AdminID = admin
	}

	if raw := os.Getenv(EnvFreeRequests); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s %q is not an integer", EnvFreeRequests, raw)
		}
		cfg.Bot.FreeRequests = n
	}

	if path := os.Getenv(EnvDBPath); path != "" {
		cfg.Database.Path = path
	}

	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Bot.FreeRequests <= 0 {
		return fmt.Errorf("bot.free_requests must be positive, got %d", c.Bot.FreeRequests)
	}
	if c.Bot.RefillWindow <= 0 {
		return fmt.Errorf("bot.refill_window must be positive")
	}
	if c.Bot.RefillInterval <= 0 {
		return fmt.Errorf("bot.refill_interval must be positive")
	}

	switch c.Database.Driver {
	case DriverModernc, DriverCgo:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverModernc, DriverCgo, c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	tg := c.Frontends.Telegram
	if tg.Enabled && tg.Token == "" {
		return fmt.Errorf("frontends.telegram.token is required when telegram is enabled (or set %s)", EnvBotToken)
	}
	if tg.SendRate < 0 {
		return fmt.Errorf("frontends.telegram.send_rate must not be negative")
	}

	mx := c.Frontends.Matrix
	if mx.Enabled {
		if mx.Homeserver == "" {
			return fmt.Errorf("frontends.matrix.homeserver is required when matrix is enabled")
		}
		u, err := url.Parse(mx.Homeserver)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("frontends.matrix.homeserver must be an http or https URL")
		}
		if mx.UserID == "" {
			return fmt.Errorf("frontends.matrix.user_id is required when matrix is enabled")
		}
		if mx.AccessToken == "" {
			return fmt.Errorf("frontends.matrix.access_token is required when matrix is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// EnabledFrontends lists the names of the enabled chat frontends.
func (c *Config) EnabledFrontends() []string {
	var names []string
	if c.Frontends.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if c.Frontends.Matrix.Enabled {
		names = append(names, "matrix")
	}
	return names
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"bot.refill_window", cfg.Bot.RefillWindowRaw, &cfg.Bot.RefillWindow},
		{"bot.refill_interval", cfg.Bot.RefillIntervalRaw, &cfg.Bot.RefillInterval},
		{"frontends.telegram.poll_timeout", cfg.Frontends.Telegram.PollTimeoutRaw, &cfg.Frontends.Telegram.PollTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// Sample is the annotated YAML written by "opentrack-bot init".
const Sample = `# opentrack-bot configuration
bot:
  admin_id: "${ADMIN_ID}"      # exempt from quotas
  free_requests: 3             # lookups per user per refill window
  refill_window: "24h"
  refill_interval: "1h"        # how often the refill sweep runs
  idle_search: true            # free generic search for text sent outside a category

database:
  driver: "sqlite"             # "sqlite" (pure Go) or "sqlite3" (cgo)
  path: "%s"

frontends:
  telegram:
    enabled: true
    token: "${BOT_TOKEN}"
    poll_timeout: "60s"
    send_rate: 25              # messages per second

  matrix:
    enabled: false
    homeserver: "https://matrix.org"
    user_id: "@opentrack:matrix.org"
    access_token: "${MATRIX_ACCESS_TOKEN}"
    allowed_rooms: []

logging:
  level: "info"                # debug, info, warn, error
  format: "text"               # text or json
`
