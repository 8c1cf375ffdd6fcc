// ABOUTME: SQLite implementation of per-user quota records
// ABOUTME: Every mutation is one conditional statement so the database performs the compare-and-swap

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetOrCreateQuota returns the existing record or inserts a fresh one.
func (s *SQLiteStore) GetOrCreateQuota(ctx context.Context, userID string, credits int, now time.Time) (*QuotaRecord, error) {
	query := `
		INSERT INTO quotas (user_id, credits_remaining, last_refill_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, userID, credits, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("inserting quota: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("created quota", "user_id", userID, "credits", credits)
	}

	return s.GetQuota(ctx, userID)
}

// GetQuota retrieves the record for a user.
func (s *SQLiteStore) GetQuota(ctx context.Context, userID string) (*QuotaRecord, error) {
	query := `
		SELECT user_id, credits_remaining, last_refill_at
		FROM quotas
		WHERE user_id = ?
	`

	var rec QuotaRecord
	var lastRefill int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, &rec.CreditsRemaining, &lastRefill)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying quota: %w", err)
	}

	rec.LastRefillAt = time.Unix(lastRefill, 0).UTC()
	return &rec, nil
}

// ConsumeCredit decrements the user's credits if they are positive.
// Returns false without error when nothing was consumed.
func (s *SQLiteStore) ConsumeCredit(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE quotas
		SET credits_remaining = credits_remaining - 1
		WHERE user_id = ? AND credits_remaining > 0
	`

	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("consuming credit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("consume credit", "user_id", userID, "consumed", rowsAffected > 0)
	return rowsAffected > 0, nil
}

// RefillQuota resets credits when the last refill is old enough and the user is below the allowance.
func (s *SQLiteStore) RefillQuota(ctx context.Context, userID string, credits int, now, cutoff time.Time) (bool, error) {
	query := `
		UPDATE quotas
		SET credits_remaining = ?, last_refill_at = ?
		WHERE user_id = ? AND last_refill_at <= ? AND credits_remaining < ?
	`

	result, err := s.db.ExecContext(ctx, query, credits, now.Unix(), userID, cutoff.Unix(), credits)
	if err != nil {
		return false, fmt.Errorf("refilling quota: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Debug("refilled quota", "user_id", userID, "credits", credits)
	}
	return rowsAffected > 0, nil
}

// ListQuotasDue returns the records a refill sweep should visit.
func (s *SQLiteStore) ListQuotasDue(ctx context.Context, credits int, cutoff time.Time) ([]*QuotaRecord, error) {
	query := `
		SELECT user_id, credits_remaining, last_refill_at
		FROM quotas
		WHERE credits_remaining < ? AND last_refill_at <= ?
		ORDER BY last_refill_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, credits, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying due quotas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanQuotas(rows)
}

// ListQuotas returns records ordered by user ID. A non-positive limit means 100.
func (s *SQLiteStore) ListQuotas(ctx context.Context, limit int) ([]*QuotaRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT user_id, credits_remaining, last_refill_at
		FROM quotas
		ORDER BY user_id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying quotas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanQuotas(rows)
}

// CountQuotas returns the number of known users.
func (s *SQLiteStore) CountQuotas(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotas`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting quotas: %w", err)
	}
	return n, nil
}

func scanQuotas(rows *sql.Rows) ([]*QuotaRecord, error) {
	var records []*QuotaRecord
	for rows.Next() {
		var rec QuotaRecord
		var lastRefill int64
		if err := rows.Scan(&rec.UserID, &rec.CreditsRemaining, &lastRefill); err != nil {
			return nil, fmt.Errorf("scanning quota row: %w", err)
		}
		rec.LastRefillAt = time.Unix(lastRefill, 0).UTC()
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating quota rows: %w", err)
	}

	return records, nil
}
