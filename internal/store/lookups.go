// ABOUTME: SQLite implementation of the lookup audit log
// ABOUTME: Records dispatched queries (never their text) and aggregates them for admin stats

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateLookup is returned when a lookup with the same ID already exists
var ErrDuplicateLookup = errors.New("lookup already exists")

// SaveLookup stores a lookup row. An empty ID is filled with a new UUID and a
// zero CreatedAt with the current time.
func (s *SQLiteStore) SaveLookup(ctx context.Context, lookup *Lookup) error {
	if lookup.ID == "" {
		lookup.ID = uuid.New().String()
	}
	if lookup.CreatedAt.IsZero() {
		lookup.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lookups (id, user_id, category, metered, link_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		lookup.ID,
		lookup.UserID,
		lookup.Category,
		boolToInt(lookup.Metered),
		lookup.LinkCount,
		lookup.CreatedAt.Unix(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateLookup
		}
		return fmt.Errorf("inserting lookup: %w", err)
	}

	s.logger.Debug("saved lookup",
		"id", lookup.ID,
		"user_id", lookup.UserID,
		"category", lookup.Category,
		"metered", lookup.Metered,
	)
	return nil
}

// GetLookupStats aggregates lookups created at or after since.
func (s *SQLiteStore) GetLookupStats(ctx context.Context, since time.Time) (*LookupStats, error) {
	stats := &LookupStats{ByCategory: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM lookups WHERE created_at >= ?`,
		since.Unix(),
	).Scan(&stats.Users)
	if err != nil {
		return nil, fmt.Errorf("counting lookup users: %w", err)
	}

	query := `
		SELECT category, metered, COUNT(*)
		FROM lookups
		WHERE created_at >= ?
		GROUP BY category, metered
	`

	rows, err := s.db.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying lookup stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var category string
		var metered, count int
		if err := rows.Scan(&category, &metered, &count); err != nil {
			return nil, fmt.Errorf("scanning lookup stats row: %w", err)
		}
		stats.Total += count
		stats.ByCategory[category] += count
		if metered != 0 {
			stats.Metered += count
		} else {
			stats.Free += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lookup stats rows: %w", err)
	}

	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
