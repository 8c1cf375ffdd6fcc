// ABOUTME: Quota ledger: access checks, guarded credit consumption and daily refill
// ABOUTME: Wraps a QuotaStore with the admin exemption, the daily allowance and the refill window

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/yigit201107/OpenTrackBot/internal/store"
)

// ErrStoreUnavailable wraps every failure of the backing store.
var ErrStoreUnavailable = errors.New("quota store unavailable")

// AdminSentinel is what RemainingDisplay shows for the admin identity.
const AdminSentinel = "∞"

// Defaults used when Options leave a field zero.
const (
	DefaultFreeRequests = 3
	DefaultRefillWindow = 24 * time.Hour
)

// Store is what the ledger needs from persistence.
type Store interface {
	GetOrCreateQuota(ctx context.Context, userID string, credits int, now time.Time) (*store.QuotaRecord, error)
	ConsumeCredit(ctx context.Context, userID string) (bool, error)
	RefillQuota(ctx context.Context, userID string, credits int, now, cutoff time.Time) (bool, error)
	ListQuotasDue(ctx context.Context, credits int, cutoff time.Time) ([]*store.QuotaRecord, error)
}

// Options configures a Ledger.
type Options struct {
	AdminID      string           // exempt identity; empty means no admin
	FreeRequests int              // daily allowance, DefaultFreeRequests if zero
	RefillWindow time.Duration    // DefaultRefillWindow if zero
	Now          func() time.Time // clock, time.Now if nil
	Logger       *slog.Logger
}

// Ledger is the quota contract shared by the conversation controller and the
// refill scheduler.
type Ledger struct {
	store     Store
	adminID   string
	allowance int
	window    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Ledger over the given store.
func New(s Store, opts Options) *Ledger {
	if opts.FreeRequests <= 0 {
		opts.FreeRequests = DefaultFreeRequests
	}
	if opts.RefillWindow <= 0 {
		opts.RefillWindow = DefaultRefillWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Ledger{
		store:     s,
		adminID:   opts.AdminID,
		allowance: opts.FreeRequests,
		window:    opts.RefillWindow,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "ledger"),
	}
}

// IsAdmin reports whether userID is the exempt identity.
func (l *Ledger) IsAdmin(userID string) bool {
	return l.adminID != "" && userID == l.adminID
}

// Allowance returns the number of credits a full refill restores.
func (l *Ledger) Allowance() int {
	return l.allowance
}

// Window returns the minimum time between two refills.
func (l *Ledger) Window() time.Duration {
	return l.window
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// GetOrCreate returns the user's record, creating it with a full allowance on
// first sight. The admin gets a synthetic record that is never persisted.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*store.QuotaRecord, error) {
	if l.IsAdmin(userID) {
		return &store.QuotaRecord{UserID: userID, LastRefillAt: l.now(), Unlimited: true}, nil
	}

	rec, err := l.store.GetOrCreateQuota(ctx, userID, l.allowance, l.now())
	if err != nil {
		return nil, fmt.Errorf("%w: loading quota for %s: %w", ErrStoreUnavailable, userID, err)
	}
	return rec, nil
}

// HasAccess reports whether the user may start a lookup.
func (l *Ledger) HasAccess(ctx context.Context, userID string) (bool, error) {
	if l.IsAdmin(userID) {
		return true, nil
	}

	rec, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec.CreditsRemaining > 0, nil
}

// Consume takes one credit from the user if any are left. It is a no-op for
// the admin and for users already at zero; the returned bool reports whether a
// credit was actually taken.
func (l *Ledger) Consume(ctx context.Context, userID string) (bool, error) {
	if l.IsAdmin(userID) {
		return false, nil
	}

	ok, err := l.store.ConsumeCredit(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: consuming credit for %s: %w", ErrStoreUnavailable, userID, err)
	}
	if !ok {
		l.logger.Debug("consume skipped, no credits left", "user_id", userID)
	}
	return ok, nil
}

// RefillIfDue restores the full allowance when at least one window has passed
// since the last refill and the user is below the allowance.
func (l *Ledger) RefillIfDue(ctx context.Context, userID string, now time.Time) (bool, error) {
	if l.IsAdmin(userID) {
		return false, nil
	}

	ok, err := l.store.RefillQuota(ctx, userID, l.allowance, now, now.Add(-l.window))
	if err != nil {
		return false, fmt.Errorf("%w: refilling %s: %w", ErrStoreUnavailable, userID, err)
	}
	if ok {
		l.logger.Info("quota refilled", "user_id", userID, "credits", l.allowance)
	}
	return ok, nil
}

// DueForRefill lists the users a refill at now would reset.
func (l *Ledger) DueForRefill(ctx context.Context, now time.Time) ([]string, error) {
	records, err := l.store.ListQuotasDue(ctx, l.allowance, now.Add(-l.window))
	if err != nil {
		return nil, fmt.Errorf("%w: listing due quotas: %w", ErrStoreUnavailable, err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if l.IsAdmin(rec.UserID) {
			continue
		}
		ids = append(ids, rec.UserID)
	}
	return ids, nil
}

// RemainingDisplay renders the user's balance for chat replies.
func (l *Ledger) RemainingDisplay(ctx context.Context, userID string) (string, error) {
	if l.IsAdmin(userID) {
		return AdminSentinel, nil
	}

	rec, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(rec.CreditsRemaining), nil
}

// NextRefill returns when the user's credits will next be restored, or the
// zero time if they are already full or the user is the admin.
func (l *Ledger) NextRefill(ctx context.Context, userID string) (time.Time, error) {
	if l.IsAdmin(userID) {
		return time.Time{}, nil
	}

	rec, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if rec.CreditsRemaining >= l.allowance {
		return time.Time{}, nil
	}
	return rec.LastRefillAt.Add(l.window), nil
}
