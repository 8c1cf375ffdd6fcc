// Package config handles configuration loading for opentrack-bot.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, or from the environment alone when no file exists. Every
// optional field has a default (see Default).
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from OPENTRACK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/opentrack/bot.yaml
//  3. ~/.config/opentrack/bot.yaml
//
// A file whose name ends in .toml is decoded as TOML; anything else is YAML.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	frontends:
//	  telegram:
//	    token: "${BOT_TOKEN}"
//
// A few variables also override the file directly, so a bare environment is
// enough to run the bot:
//
//	BOT_TOKEN          enables Telegram with this token
//	ADMIN_ID           identity exempt from quotas
//	FREE_REQUESTS      lookups per user per refill window (default 3)
//	OPENTRACK_DB_PATH  database file
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	bot:
//	  refill_window: "24h"
//	  refill_interval: "1h"
//
// # Configuration Sections
//
// Bot:
//
//	bot:
//	  admin_id: "123456789"
//	  free_requests: 3
//	  idle_search: true
//
// Database:
//
//	database:
//	  driver: "sqlite"     # or "sqlite3" for the cgo driver
//	  path: "~/.local/share/opentrack/opentrack.db"
//
// Frontends:
//
//	frontends:
//	  telegram:
//	    enabled: true
//	    token: "${BOT_TOKEN}"
//	    poll_timeout: "60s"
//	    send_rate: 25
//	  matrix:
//	    enabled: false
//	    homeserver: "https://matrix.org"
//	    user_id: "@opentrack:matrix.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	    allowed_rooms: ["!abc:matrix.org"]
//
// Logging:
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text or json
package config
