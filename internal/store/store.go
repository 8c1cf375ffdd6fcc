// ABOUTME: Store interfaces and data types for bot persistence
// ABOUTME: Defines QuotaRecord, Lookup and the QuotaStore/LookupStore interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// QuotaRecord is the durable credit balance of one user.
type QuotaRecord struct {
	UserID           string
	CreditsRemaining int
	LastRefillAt     time.Time
	Unlimited        bool // synthetic admin record, never persisted
}

// Lookup is the audit row of one dispatched query. The query text itself is
// never stored.
type Lookup struct {
	ID        string
	UserID    string
	Category  string
	Metered   bool // true when a credit was consumed for it
	LinkCount int
	CreatedAt time.Time
}

// LookupStats aggregates lookups since a point in time.
type LookupStats struct {
	Total      int
	Metered    int
	Free       int
	Users      int            // distinct users that ran a lookup
	ByCategory map[string]int // category -> count
}

// QuotaStore defines persistence for per-user credits. Mutating methods are
// conditional and report whether a row changed.
type QuotaStore interface {
	// GetOrCreateQuota returns the record for userID, inserting it with the
	// given credits and refill time if it does not exist yet.
	GetOrCreateQuota(ctx context.Context, userID string, credits int, now time.Time) (*QuotaRecord, error)

	// GetQuota returns ErrNotFound for unknown users.
	GetQuota(ctx context.Context, userID string) (*QuotaRecord, error)

	// ConsumeCredit decrements credits by one only if they are positive.
	ConsumeCredit(ctx context.Context, userID string) (bool, error)

	// RefillQuota resets credits to the given value and stamps now, only if the
	// last refill happened at or before cutoff and credits are below the value.
	RefillQuota(ctx context.Context, userID string, credits int, now, cutoff time.Time) (bool, error)

	// ListQuotasDue returns records below credits whose last refill is at or before cutoff.
	ListQuotasDue(ctx context.Context, credits int, cutoff time.Time) ([]*QuotaRecord, error)

	ListQuotas(ctx context.Context, limit int) ([]*QuotaRecord, error)
	CountQuotas(ctx context.Context) (int, error)
}

// LookupStore defines persistence for the lookup audit log.
type LookupStore interface {
	SaveLookup(ctx context.Context, lookup *Lookup) error
	GetLookupStats(ctx context.Context, since time.Time) (*LookupStats, error)
}

// Store is the full persistence surface used by the bot.
type Store interface {
	QuotaStore
	LookupStore

	// Close releases any resources held by the store
	Close() error
}
