// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to simulate an unavailable database

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	quotas  map[string]*QuotaRecord // keyed by user ID
	lookups []*Lookup
	err     error // returned by every call while set
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		quotas: make(map[string]*QuotaRecord),
	}
}

// SetError makes every subsequent call fail with err until it is cleared with nil.
func (m *MockStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// PutQuota stores a record as-is, replacing any existing one.
func (m *MockStore) PutQuota(rec *QuotaRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	m.quotas[r.UserID] = &r
}

// GetOrCreateQuota returns the existing record or stores a new one.
func (m *MockStore) GetOrCreateQuota(ctx context.Context, userID string, credits int, now time.Time) (*QuotaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	rec, ok := m.quotas[userID]
	if !ok {
		rec = &QuotaRecord{
			UserID:           userID,
			CreditsRemaining: credits,
			LastRefillAt:     time.Unix(now.Unix(), 0).UTC(),
		}
		m.quotas[userID] = rec
	}

	result := *rec
	return &result, nil
}

// GetQuota retrieves a record by user ID.
func (m *MockStore) GetQuota(ctx context.Context, userID string) (*QuotaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	rec, ok := m.quotas[userID]
	if !ok {
		return nil, ErrNotFound
	}

	result := *rec
	return &result, nil
}

// ConsumeCredit decrements credits if they are positive.
func (m *MockStore) ConsumeCredit(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}

	rec, ok := m.quotas[userID]
	if !ok || rec.CreditsRemaining <= 0 {
		return false, nil
	}
	rec.CreditsRemaining--
	return true, nil
}

// RefillQuota resets credits when the record is due.
func (m *MockStore) RefillQuota(ctx context.Context, userID string, credits int, now, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}

	rec, ok := m.quotas[userID]
	if !ok || !due(rec, credits, cutoff) {
		return false, nil
	}
	rec.CreditsRemaining = credits
	rec.LastRefillAt = time.Unix(now.Unix(), 0).UTC()
	return true, nil
}

// ListQuotasDue returns due records, oldest refill first.
func (m *MockStore) ListQuotasDue(ctx context.Context, credits int, cutoff time.Time) ([]*QuotaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	var records []*QuotaRecord
	for _, rec := range m.quotas {
		if due(rec, credits, cutoff) {
			r := *rec
			records = append(records, &r)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastRefillAt.Before(records[j].LastRefillAt)
	})
	return records, nil
}

// ListQuotas returns records ordered by user ID.
func (m *MockStore) ListQuotas(ctx context.Context, limit int) ([]*QuotaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	if limit <= 0 {
		limit = 100
	}

	records := make([]*QuotaRecord, 0, len(m.quotas))
	for _, rec := range m.quotas {
		r := *rec
		records = append(records, &r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UserID < records[j].UserID
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CountQuotas returns the number of stored records.
func (m *MockStore) CountQuotas(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return 0, m.err
	}
	return len(m.quotas), nil
}

// SaveLookup appends a lookup row.
func (m *MockStore) SaveLookup(ctx context.Context, lookup *Lookup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	if lookup.ID == "" {
		lookup.ID = uuid.New().String()
	}
	if lookup.CreatedAt.IsZero() {
		lookup.CreatedAt = time.Now().UTC()
	}
	for _, l := range m.lookups {
		if l.ID == lookup.ID {
			return ErrDuplicateLookup
		}
	}

	l := *lookup
	m.lookups = append(m.lookups, &l)
	return nil
}

// Lookups returns copies of every saved lookup in insertion order.
func (m *MockStore) Lookups() []*Lookup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Lookup, len(m.lookups))
	for i, l := range m.lookups {
		c := *l
		result[i] = &c
	}
	return result
}

// GetLookupStats aggregates lookups created at or after since.
func (m *MockStore) GetLookupStats(ctx context.Context, since time.Time) (*LookupStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	stats := &LookupStats{ByCategory: make(map[string]int)}
	users := make(map[string]struct{})
	for _, l := range m.lookups {
		if l.CreatedAt.Unix() < since.Unix() {
			continue
		}
		stats.Total++
		stats.ByCategory[l.Category]++
		if l.Metered {
			stats.Metered++
		} else {
			stats.Free++
		}
		users[l.UserID] = struct{}{}
	}
	stats.Users = len(users)
	return stats, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// due mirrors the WHERE clause of the SQLite refill statement.
func due(rec *QuotaRecord, credits int, cutoff time.Time) bool {
	return rec.CreditsRemaining < credits && rec.LastRefillAt.Unix() <= cutoff.Unix()
}

// Ensure MockStore implements Store interface.
var _ Store = (*MockStore)(nil)
