// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion and overrides, duration parsing and validation

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBotToken, EnvAdminID, EnvFreeRequests, EnvDBPath} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "bot.yaml", `
bot:
  admin_id: "42"
  free_requests: 5
  refill_window: "12h"
  refill_interval: "15m"
  idle_search: false

database:
  driver: "sqlite3"
  path: "./test.db"

frontends:
  telegram:
    enabled: true
    token: "123:abc"
    poll_timeout: "30s"
    send_rate: 10

  matrix:
    enabled: true
    homeserver: "https://matrix.org"
    user_id: "@bot:matrix.org"
    access_token: "matrix-token"
    allowed_rooms:
      - "!room1:matrix.org"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.AdminID != "42" {
		t.Errorf("Bot.AdminID = %q, want %q", cfg.Bot.AdminID, "42")
	}
	if cfg.Bot.FreeRequests != 5 {
		t.Errorf("Bot.FreeRequests = %d, want 5", cfg.Bot.FreeRequests)
	}
	if cfg.Bot.RefillWindow != 12*time.Hour {
		t.Errorf("Bot.RefillWindow = %v, want 12h", cfg.Bot.RefillWindow)
	}
	if cfg.Bot.RefillInterval != 15*time.Minute {
		t.Errorf("Bot.RefillInterval = %v, want 15m", cfg.Bot.RefillInterval)
	}
	if cfg.Bot.IdleSearch {
		t.Error("Bot.IdleSearch = true, want false")
	}
	if cfg.Database.Driver != DriverCgo {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverCgo)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Frontends.Telegram.PollTimeout != 30*time.Second {
		t.Errorf("Telegram.PollTimeout = %v, want 30s", cfg.Frontends.Telegram.PollTimeout)
	}
	if cfg.Frontends.Telegram.SendRate != 10 {
		t.Errorf("Telegram.SendRate = %v, want 10", cfg.Frontends.Telegram.SendRate)
	}
	if len(cfg.Frontends.Matrix.AllowedRooms) != 1 || cfg.Frontends.Matrix.AllowedRooms[0] != "!room1:matrix.org" {
		t.Errorf("Matrix.AllowedRooms = %v", cfg.Frontends.Matrix.AllowedRooms)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if got := cfg.EnabledFrontends(); len(got) != 2 {
		t.Errorf("EnabledFrontends() = %v, want telegram and matrix", got)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "bot.toml", `
[bot]
admin_id = "7"
free_requests = 2

[database]
path = "/tmp/opentrack.db"

[frontends.telegram]
enabled = true
token = "123:abc"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.AdminID != "7" || cfg.Bot.FreeRequests != 2 {
		t.Errorf("Bot = %+v", cfg.Bot)
	}
	if cfg.Database.Path != "/tmp/opentrack.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Database.Driver != DriverModernc {
		t.Errorf("Database.Driver = %q, want default %q", cfg.Database.Driver, DriverModernc)
	}
	if !cfg.Bot.IdleSearch {
		t.Error("Bot.IdleSearch should default to true")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/data")

	path := writeConfig(t, "bot.yaml", "bot:\n  admin_id: \"1\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.FreeRequests != 3 {
		t.Errorf("Bot.FreeRequests = %d, want 3", cfg.Bot.FreeRequests)
	}
	if cfg.Bot.RefillWindow != 24*time.Hour {
		t.Errorf("Bot.RefillWindow = %v, want 24h", cfg.Bot.RefillWindow)
	}
	if cfg.Bot.RefillInterval != time.Hour {
		t.Errorf("Bot.RefillInterval = %v, want 1h", cfg.Bot.RefillInterval)
	}
	if cfg.Frontends.Telegram.PollTimeout != 60*time.Second {
		t.Errorf("Telegram.PollTimeout = %v, want 60s", cfg.Frontends.Telegram.PollTimeout)
	}
	if want := filepath.Join("/data", "opentrack", "opentrack.db"); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
	if len(cfg.EnabledFrontends()) != 0 {
		t.Errorf("EnabledFrontends() = %v, want none", cfg.EnabledFrontends())
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_MATRIX_TOKEN", "syt_secret")

	path := writeConfig(t, "bot.yaml", `
frontends:
  matrix:
    enabled: true
    homeserver: "https://matrix.example.org"
    user_id: "@bot:example.org"
    access_token: "${TEST_MATRIX_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Frontends.Matrix.AccessToken != "syt_secret" {
		t.Errorf("Matrix.AccessToken = %q, want %q", cfg.Frontends.Matrix.AccessToken, "syt_secret")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBotToken, "999:override")
	t.Setenv(EnvAdminID, "1001")
	t.Setenv(EnvFreeRequests, " 7 ")
	t.Setenv(EnvDBPath, "/var/lib/opentrack/bot.db")

	path := writeConfig(t, "bot.yaml", `
bot:
  admin_id: "42"
  free_requests: 3
frontends:
  telegram:
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.AdminID != "1001" {
		t.Errorf("Bot.AdminID = %q, want env value", cfg.Bot.AdminID)
	}
	if cfg.Bot.FreeRequests != 7 {
		t.Errorf("Bot.FreeRequests = %d, want 7", cfg.Bot.FreeRequests)
	}
	if !cfg.Frontends.Telegram.Enabled || cfg.Frontends.Telegram.Token != "999:override" {
		t.Errorf("Telegram = %+v, want enabled with env token", cfg.Frontends.Telegram)
	}
	if cfg.Database.Path != "/var/lib/opentrack/bot.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBotToken, "123:abc")
	t.Setenv(EnvAdminID, "42")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Bot.AdminID != "42" || cfg.Bot.FreeRequests != 3 {
		t.Errorf("Bot = %+v", cfg.Bot)
	}
	if got := cfg.EnabledFrontends(); len(got) != 1 || got[0] != "telegram" {
		t.Errorf("EnabledFrontends() = %v, want [telegram]", got)
	}
}

func TestFromEnv_BadFreeRequests(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFreeRequests, "three")

	_, err := FromEnv()
	if err == nil || !strings.Contains(err.Error(), EnvFreeRequests) {
		t.Errorf("FromEnv() error = %v, want mention of %s", err, EnvFreeRequests)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "bot: [", "parsing config file"},
		{"bad duration", "bot:\n  refill_window: \"soon\"\n", "bot.refill_window"},
		{"zero allowance", "bot:\n  free_requests: -1\n", "free_requests"},
		{"unknown driver", "database:\n  driver: \"postgres\"\n", "database.driver"},
		{"telegram without token", "frontends:\n  telegram:\n    enabled: true\n", "telegram.token"},
		{"matrix bad url", "frontends:\n  matrix:\n    enabled: true\n    homeserver: \"matrix.org\"\n    user_id: \"@a:b\"\n    access_token: \"x\"\n", "homeserver"},
		{"matrix without user", "frontends:\n  matrix:\n    enabled: true\n    homeserver: \"https://matrix.org\"\n", "user_id"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"negative rate", "frontends:\n  telegram:\n    send_rate: -1\n", "send_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "bot.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading error", err)
	}
}

func TestSample_Loads(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBotToken, "123:abc")
	t.Setenv("MATRIX_ACCESS_TOKEN", "")

	path := writeConfig(t, "bot.yaml", fmt.Sprintf(Sample, "/tmp/opentrack-sample.db"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
	if cfg.Database.Path != "/tmp/opentrack-sample.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Bot.AdminID != "" {
		t.Errorf("Bot.AdminID = %q, want empty with ADMIN_ID unset", cfg.Bot.AdminID)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("OT_A", "alpha")

	got := expandEnvVars("x=${OT_A} y=${OT_UNSET_VAR}")
	if got != "x=alpha y=" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}
