// ABOUTME: Gateway wires the store, ledger, controller and refill scheduler together
// ABOUTME: Runs the scheduler and every chat frontend under one errgroup until shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yigit201107/OpenTrackBot/internal/config"
	"github.com/yigit201107/OpenTrackBot/internal/conversation"
	"github.com/yigit201107/OpenTrackBot/internal/dedupe"
	"github.com/yigit201107/OpenTrackBot/internal/ledger"
	"github.com/yigit201107/OpenTrackBot/internal/refill"
	"github.com/yigit201107/OpenTrackBot/internal/store"
)

// ErrNoFrontends is returned by Run when no frontend was added.
var ErrNoFrontends = errors.New("no frontends enabled")

// Frontend is a chat transport. Run blocks, delivering updates to h, until ctx
// is cancelled or the transport fails.
type Frontend interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// Gateway owns the bot's core components and supervises the frontends.
type Gateway struct {
	store      store.Store
	ledger     *ledger.Ledger
	controller *conversation.Controller
	scheduler  *refill.Scheduler
	dedupe     *dedupe.Cache
	logger     *slog.Logger

	mu        sync.Mutex
	frontends []Frontend

	shutdownOnce sync.Once
	shutdownErr  error
}

// Options tweaks a Gateway built by NewWithStore. Zero values are fine.
type Options struct {
	Now func() time.Time // ledger clock, time.Now if nil
}

// initStore opens the configured database.
func initStore(cfg config.DatabaseConfig) (store.Store, error) {
	s, err := store.NewSQLiteStoreWithDriver(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New opens the configured store and builds a Gateway over it.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, s, logger, Options{}), nil
}

// NewWithStore builds a Gateway over an already open store. The Gateway takes
// ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger, opts Options) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	led := ledger.New(s, ledger.Options{
		AdminID:      cfg.Bot.AdminID,
		FreeRequests: cfg.Bot.FreeRequests,
		RefillWindow: cfg.Bot.RefillWindow,
		Now:          opts.Now,
		Logger:       logger,
	})

	gw := &Gateway{
		store:  s,
		ledger: led,
		controller: conversation.New(led, s, conversation.Options{
			IdleSearch: cfg.Bot.IdleSearch,
			Logger:     logger,
		}),
		scheduler: refill.New(led, cfg.Bot.RefillInterval, logger),
		dedupe:    dedupe.New(dedupe.Options{}),
		logger:    logger.With("component", "gateway"),
	}

	gw.logger.Info("gateway initialized",
		"free_requests", led.Allowance(),
		"refill_window", led.Window(),
		"admin_configured", cfg.Bot.AdminID != "",
		"idle_search", cfg.Bot.IdleSearch,
	)
	return gw
}

// AddFrontend registers a frontend to be started by Run.
func (g *Gateway) AddFrontend(f Frontend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frontends = append(g.frontends, f)
}

// Store returns the backing store.
func (g *Gateway) Store() store.Store { return g.store }

// Ledger returns the quota ledger.
func (g *Gateway) Ledger() *ledger.Ledger { return g.ledger }

// Scheduler returns the refill scheduler.
func (g *Gateway) Scheduler() *refill.Scheduler { return g.scheduler }

// Run starts the refill scheduler and every frontend and blocks until ctx is
// cancelled, one of them fails, or every frontend has returned. A failing
// frontend cancels the others.
func (g *Gateway) Run(ctx context.Context) error {
	g.mu.Lock()
	frontends := append([]Frontend(nil), g.frontends...)
	g.mu.Unlock()

	if len(frontends) == 0 {
		return ErrNoFrontends
	}

	eg, egCtx := errgroup.WithContext(ctx)

	// The scheduler only serves frontends, so it stops with the last one.
	schedCtx, stopScheduler := context.WithCancel(egCtx)
	defer stopScheduler()

	eg.Go(func() error {
		return g.scheduler.Run(schedCtx)
	})

	fg, fgCtx := errgroup.WithContext(egCtx)
	for _, f := range frontends {
		fg.Go(func() error {
			g.logger.Info("starting frontend", "frontend", f.Name())
			if err := f.Run(fgCtx, g); err != nil {
				return fmt.Errorf("frontend %s: %w", f.Name(), err)
			}
			g.logger.Info("frontend stopped", "frontend", f.Name())
			return nil
		})
	}
	eg.Go(func() error {
		defer stopScheduler()
		return fg.Wait()
	})

	err := eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the scheduler, the dedupe cache and closes the store. It is
// safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")
		g.scheduler.Stop()
		g.dedupe.Close()

		if err := g.store.Close(); err != nil {
			g.shutdownErr = fmt.Errorf("closing store: %w", err)
		}
	})
	return g.shutdownErr
}
