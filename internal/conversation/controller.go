// ABOUTME: Controller drives the per-user lookup dialog and meters it through the ledger
// ABOUTME: Resolves events to actions, moves sessions between idle and awaiting, and builds replies

package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
	"github.com/yigit201107/OpenTrackBot/internal/store"
)

// statsWindow is how far back the admin summary looks.
const statsWindow = 24 * time.Hour

// Ledger is what the controller needs from the quota ledger.
type Ledger interface {
	IsAdmin(userID string) bool
	Now() time.Time
	GetOrCreate(ctx context.Context, userID string) (*store.QuotaRecord, error)
	HasAccess(ctx context.Context, userID string) (bool, error)
	Consume(ctx context.Context, userID string) (bool, error)
	RemainingDisplay(ctx context.Context, userID string) (string, error)
	NextRefill(ctx context.Context, userID string) (time.Time, error)
}

// Recorder persists the lookup audit log and answers the admin summary.
type Recorder interface {
	SaveLookup(ctx context.Context, lookup *store.Lookup) error
	GetLookupStats(ctx context.Context, since time.Time) (*store.LookupStats, error)
	CountQuotas(ctx context.Context) (int, error)
}

// Event is one inbound message or button press.
type Event struct {
	UserID   string
	Text     string
	Callback string // button callback token, empty for plain messages
}

// Options configures a Controller.
type Options struct {
	// IdleSearch enables the free generic search for text typed while idle.
	IdleSearch bool
	Logger     *slog.Logger
}

// Controller owns the dialog state of every user.
type Controller struct {
	ledger     Ledger
	recorder   Recorder
	sessions   *Sessions
	idleSearch bool
	logger     *slog.Logger
}

// New creates a Controller. recorder may be nil, in which case lookups are not
// logged and /stats reports nothing.
func New(ledger Ledger, recorder Recorder, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		ledger:     ledger,
		recorder:   recorder,
		sessions:   NewSessions(),
		idleSearch: opts.IdleSearch,
		logger:     opts.Logger.With("component", "conversation"),
	}
}

// Sessions exposes the session map, mainly for tests and the admin summary.
func (c *Controller) Sessions() *Sessions {
	return c.sessions
}

type action int

const (
	actionText action = iota
	actionStart
	actionMenu
	actionSelect
	actionBalance
	actionHelp
	actionStats
	actionUnknown
)

var commands = map[string]action{
	"/start":   actionStart,
	"/menu":    actionMenu,
	"/balance": actionBalance,
	"/help":    actionHelp,
	"/stats":   actionStats,
}

var categoryCommands = map[string]dispatch.Category{
	"/handle": dispatch.CategoryHandle,
	"/name":   dispatch.CategoryFullName,
	"/phone":  dispatch.CategoryPhone,
	"/email":  dispatch.CategoryEmail,
}

// Handle processes one event and returns the reply to send. It never returns
// nil; store failures become ReplyFailure.
func (c *Controller) Handle(ctx context.Context, ev Event) *Reply {
	act, category := resolve(ev)

	c.logger.Debug("handling event",
		"user_id", ev.UserID,
		"action", act,
		"category", category,
		"awaiting", c.sessions.Get(ev.UserID),
	)

	switch act {
	case actionStart:
		return c.start(ctx, ev.UserID)
	case actionMenu:
		c.sessions.Reset(ev.UserID)
		return &Reply{Kind: ReplyMenu, Keyboard: KeyboardMenu}
	case actionSelect:
		return c.selectCategory(ctx, ev.UserID, category)
	case actionBalance:
		return c.balance(ctx, ev.UserID)
	case actionHelp:
		return &Reply{
			Kind:       ReplyHelp,
			Keyboard:   KeyboardMenu,
			Admin:      c.ledger.IsAdmin(ev.UserID),
			IdleSearch: c.idleSearch,
		}
	case actionStats:
		return c.stats(ctx, ev.UserID)
	case actionUnknown:
		return c.unknown(ev.UserID)
	default:
		return c.text(ctx, ev.UserID, ev.Text)
	}
}

func resolve(ev Event) (action, dispatch.Category) {
	if ev.Callback != "" {
		if ev.Callback == CallbackMenu {
			return actionMenu, dispatch.CategoryNone
		}
		if raw, ok := strings.CutPrefix(ev.Callback, callbackSearch); ok {
			if cat, ok := dispatch.ParseCategory(raw); ok && cat.Valid() {
				return actionSelect, cat
			}
		}
		return actionUnknown, dispatch.CategoryNone
	}

	if act, cat, ok := resolveLabel(ev.Text); ok {
		return act, cat
	}

	text := strings.TrimSpace(ev.Text)
	if !strings.HasPrefix(text, "/") {
		return actionText, dispatch.CategoryNone
	}

	name := strings.ToLower(strings.Fields(text)[0])
	// Group chats address commands as /cmd@botname
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	if act, ok := commands[name]; ok {
		return act, dispatch.CategoryNone
	}
	if cat, ok := categoryCommands[name]; ok {
		return actionSelect, cat
	}
	return actionUnknown, dispatch.CategoryNone
}

func (c *Controller) start(ctx context.Context, userID string) *Reply {
	if _, err := c.ledger.GetOrCreate(ctx, userID); err != nil {
		return c.failure(userID, "start", err)
	}
	remaining, err := c.ledger.RemainingDisplay(ctx, userID)
	if err != nil {
		return c.failure(userID, "start", err)
	}

	c.sessions.Reset(userID)
	return &Reply{
		Kind:      ReplyWelcome,
		Keyboard:  KeyboardMenu,
		Remaining: remaining,
		Admin:     c.ledger.IsAdmin(userID),
	}
}

func (c *Controller) selectCategory(ctx context.Context, userID string, category dispatch.Category) *Reply {
	ok, err := c.ledger.HasAccess(ctx, userID)
	if err != nil {
		return c.failure(userID, "select", err)
	}

	if !ok {
		c.sessions.Reset(userID)
		next, err := c.ledger.NextRefill(ctx, userID)
		if err != nil {
			c.logger.Warn("reading next refill for denial", "user_id", userID, "error", err)
		}
		c.logger.Info("lookup denied, no credits left", "user_id", userID, "category", category)
		return &Reply{Kind: ReplyDenied, Keyboard: KeyboardMenu, Remaining: "0", NextRefill: next}
	}

	c.sessions.Set(userID, category)
	return &Reply{Kind: ReplyPrompt, Keyboard: KeyboardBack, Category: category}
}

func (c *Controller) text(ctx context.Context, userID, text string) *Reply {
	awaiting := c.sessions.Get(userID)
	if awaiting == dispatch.CategoryNone {
		return c.idle(ctx, userID, text)
	}

	if strings.TrimSpace(text) == "" {
		return &Reply{Kind: ReplyPrompt, Keyboard: KeyboardBack, Category: awaiting}
	}

	consumed, err := c.ledger.Consume(ctx, userID)
	if err != nil {
		return c.failure(userID, "consume", err)
	}

	result := dispatch.Build(awaiting, text)
	c.record(ctx, userID, result, consumed)

	remaining, err := c.ledger.RemainingDisplay(ctx, userID)
	if err != nil {
		// The credit is already spent, so the links still go out.
		c.logger.Warn("reading balance after lookup", "user_id", userID, "error", err)
	}

	c.sessions.Reset(userID)
	return &Reply{
		Kind:      ReplyResults,
		Keyboard:  KeyboardMenu,
		Category:  awaiting,
		Result:    result,
		Remaining: remaining,
		Metered:   consumed,
		Admin:     c.ledger.IsAdmin(userID),
	}
}

func (c *Controller) idle(ctx context.Context, userID, text string) *Reply {
	if !c.idleSearch || strings.TrimSpace(text) == "" {
		return c.unknown(userID)
	}

	result := dispatch.Generic(text)
	c.record(ctx, userID, result, false)

	return &Reply{
		Kind:     ReplyResults,
		Keyboard: KeyboardMenu,
		Category: dispatch.CategoryGeneric,
		Result:   result,
		Admin:    c.ledger.IsAdmin(userID),
	}
}

func (c *Controller) balance(ctx context.Context, userID string) *Reply {
	remaining, err := c.ledger.RemainingDisplay(ctx, userID)
	if err != nil {
		return c.failure(userID, "balance", err)
	}
	next, err := c.ledger.NextRefill(ctx, userID)
	if err != nil {
		return c.failure(userID, "balance", err)
	}

	return &Reply{
		Kind:       ReplyBalance,
		Keyboard:   c.keyboardFor(userID),
		Remaining:  remaining,
		NextRefill: next,
		Admin:      c.ledger.IsAdmin(userID),
	}
}

func (c *Controller) stats(ctx context.Context, userID string) *Reply {
	if !c.ledger.IsAdmin(userID) {
		return c.unknown(userID)
	}

	since := c.ledger.Now().Add(-statsWindow)
	summary := &Stats{Since: since, Lookups: &store.LookupStats{ByCategory: map[string]int{}}, Active: c.sessions.Len()}

	if c.recorder != nil {
		lookups, err := c.recorder.GetLookupStats(ctx, since)
		if err != nil {
			return c.failure(userID, "stats", err)
		}
		users, err := c.recorder.CountQuotas(ctx)
		if err != nil {
			return c.failure(userID, "stats", err)
		}
		summary.Lookups = lookups
		summary.Users = users
	}

	return &Reply{Kind: ReplyStats, Keyboard: c.keyboardFor(userID), Stats: summary, Admin: true}
}

func (c *Controller) unknown(userID string) *Reply {
	return &Reply{Kind: ReplyUnknown, Keyboard: c.keyboardFor(userID), Category: c.sessions.Get(userID)}
}

// failure keeps the session as it is so the user can simply resend.
func (c *Controller) failure(userID, step string, err error) *Reply {
	c.logger.Error("conversation step failed", "user_id", userID, "step", step, "error", err)
	return &Reply{Kind: ReplyFailure, Keyboard: c.keyboardFor(userID), Category: c.sessions.Get(userID)}
}

func (c *Controller) keyboardFor(userID string) Keyboard {
	if c.sessions.Get(userID) != dispatch.CategoryNone {
		return KeyboardBack
	}
	return KeyboardMenu
}

// record appends the audit row for a dispatched lookup. Failures are logged
// only; the user already has their links.
func (c *Controller) record(ctx context.Context, userID string, result *dispatch.Result, metered bool) {
	if c.recorder == nil {
		return
	}

	err := c.recorder.SaveLookup(ctx, &store.Lookup{
		UserID:    userID,
		Category:  string(result.Category),
		Metered:   metered,
		LinkCount: len(result.Links),
		CreatedAt: c.ledger.Now(),
	})
	if err != nil {
		c.logger.Warn("recording lookup", "user_id", userID, "category", result.Category, "error", err)
	}
}
