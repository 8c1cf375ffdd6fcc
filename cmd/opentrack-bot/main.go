// ABOUTME: Entry point for opentrack-bot
// ABOUTME: Serves the Telegram and Matrix frontends and offers quota maintenance commands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/yigit201107/OpenTrackBot/internal/config"
	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
	"github.com/yigit201107/OpenTrackBot/internal/frontend/matrix"
	"github.com/yigit201107/OpenTrackBot/internal/frontend/telegram"
	"github.com/yigit201107/OpenTrackBot/internal/gateway"
	"github.com/yigit201107/OpenTrackBot/internal/render"
	"github.com/yigit201107/OpenTrackBot/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
   ___                 _____               _      ___      _
  / _ \ _ __  ___ _ _ |_   _| _ __ _ __| |__  | _ ) ___| |_
 | (_) | '_ \/ -_) ' \  | || '_/ _' / _| / /  | _ \/ _ \  _|
  \___/| .__/\___|_||_| |_||_| \__,_\__|_\_\  |___/\___/\__|
       |_|
`

// getConfigPath returns the path to the bot config file.
// Priority: OPENTRACK_CONFIG env var > XDG_CONFIG_HOME/opentrack/bot.yaml > ~/.config/opentrack/bot.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OPENTRACK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bot.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "opentrack", "bot.yaml")
}

func usage() {
	fmt.Println("Usage: opentrack-bot <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve              Start the bot")
	fmt.Println("  init [--force]     Write a sample config file")
	fmt.Println("  quotas [--limit N] List user quota records")
	fmt.Println("  refill             Run one refill sweep now")
	fmt.Println("  stats [--since D]  Show lookup statistics (default 24h)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "quotas":
		err = runQuotas(ctx, os.Args[2:])
	case "refill":
		err = runRefill(ctx)
	case "stats":
		err = runStats(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, then the config file if it exists, otherwise the
// environment alone.
func loadConfig() (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, "", fmt.Errorf("loading config from environment: %w", err)
		}
		return cfg, "(environment)", nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	return cfg, configPath, nil
}

// ensureDataDir creates the directory holding the database file.
func ensureDataDir(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureDataDir(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Quota:     %d per %s\n", cfg.Bot.FreeRequests, cfg.Bot.RefillWindow)
	green.Print("    ▶ ")
	fmt.Printf("Frontends: %s\n", strings.Join(cfg.EnabledFrontends(), ", "))
	if cfg.Bot.AdminID == "" {
		yellow.Print("    ! ")
		fmt.Println("No admin configured")
	}
	fmt.Println()

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer func() {
		if err := gw.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if cfg.Frontends.Telegram.Enabled {
		gw.AddFrontend(telegram.New(cfg.Frontends.Telegram, logger))
	}
	if cfg.Frontends.Matrix.Enabled {
		mx, err := matrix.New(cfg.Frontends.Matrix, logger)
		if err != nil {
			return err
		}
		gw.AddFrontend(mx)
	}

	logger.Info("starting opentrack-bot",
		"config", configPath,
		"version", version,
		"frontends", cfg.EnabledFrontends(),
	)
	return gw.Run(ctx)
}

func runInit(args []string) error {
	force := false
	for _, arg := range args {
		switch arg {
		case "--force", "-f":
			force = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	dbPath := filepath.Join(config.DefaultDataDir(), "opentrack.db")
	content := fmt.Sprintf(config.Sample, dbPath)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	fmt.Println("  Set BOT_TOKEN and ADMIN_ID (or edit the file), then run:")
	fmt.Println("    opentrack-bot serve")
	return nil
}

// openStore opens the configured database without starting the bot.
func openStore() (*config.Config, store.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := ensureDataDir(cfg); err != nil {
		return nil, nil, err
	}

	s, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, s, nil
}

func runQuotas(ctx context.Context, args []string) error {
	limit := 100
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--limit" || args[i] == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --limit %q", args[i+1])
			}
			limit = n
			i++
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}

	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.ListQuotas(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing quotas: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No quota records yet.")
		return nil
	}

	cutoff := time.Now().Add(-cfg.Bot.RefillWindow)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  USER\tCREDITS\tLAST REFILL\tDUE")
	fmt.Fprintln(w, "  ----\t-------\t-----------\t---")
	for _, rec := range records {
		due := ""
		if rec.CreditsRemaining < cfg.Bot.FreeRequests && !rec.LastRefillAt.After(cutoff) {
			due = "yes"
		}
		fmt.Fprintf(w, "  %s\t%d/%d\t%s\t%s\n",
			rec.UserID, rec.CreditsRemaining, cfg.Bot.FreeRequests,
			rec.LastRefillAt.Local().Format("Jan 02 15:04"), due)
	}
	return w.Flush()
}

func runRefill(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureDataDir(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer gw.Shutdown(context.Background())

	n, err := gw.Scheduler().Sweep(ctx)
	if err != nil {
		return fmt.Errorf("refill sweep: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Refilled %d user(s)\n", n)
	return nil
}

func runStats(ctx context.Context, args []string) error {
	since := 24 * time.Hour
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--since":
			if i+1 >= len(args) {
				return fmt.Errorf("--since requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid --since %q", args[i+1])
			}
			since = d
			i++
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}

	_, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	from := time.Now().Add(-since)
	stats, err := s.GetLookupStats(ctx, from)
	if err != nil {
		return fmt.Errorf("loading lookup stats: %w", err)
	}
	users, err := s.CountQuotas(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  Lookups since %s\n", from.Local().Format("Jan 02 15:04"))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Known users\t%d\n", users)
	fmt.Fprintf(w, "  Active users\t%d\n", stats.Users)
	fmt.Fprintf(w, "  Lookups\t%d\n", stats.Total)
	fmt.Fprintf(w, "  Metered\t%d\n", stats.Metered)
	fmt.Fprintf(w, "  Free\t%d\n", stats.Free)
	for _, c := range slices.Sorted(maps.Keys(stats.ByCategory)) {
		fmt.Fprintf(w, "    %s\t%d\n", render.CategoryName(dispatch.Category(c)), stats.ByCategory[c])
	}
	return w.Flush()
}
