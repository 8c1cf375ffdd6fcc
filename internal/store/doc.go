// Package store provides persistent storage for the bot using SQLite.
//
// # Architecture
//
// The store package is interface-driven:
//
//   - QuotaStore: per-user credit records with conditional (compare-and-swap) updates
//   - LookupStore: append-only audit rows for dispatched lookups
//   - Store: both of the above plus Close
//
// SQLiteStore implements Store in a single struct. MockStore is an in-memory
// implementation for tests that applies the same guards under a mutex.
//
// # Data Models
//
//   - QuotaRecord: credits remaining and the time of the last full refill
//   - Lookup: one dispatched query (category, whether it was metered, link count)
//
// # Atomicity
//
// Every quota mutation is a single conditional statement, so concurrent callers
// cannot drive credits negative and a refill cannot overwrite a fresher one:
//
//	UPDATE quotas SET credits_remaining = credits_remaining - 1
//	WHERE user_id = ? AND credits_remaining > 0
//
// # SQLite Configuration
//
// Two drivers are supported:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// The pool is capped at one connection, WAL is enabled and a busy timeout is set.
//
// Database file locations:
//
//   - Production: /var/lib/opentrack/bot.db
//   - Development: ~/.local/share/opentrack/bot.db
//   - Testing: a file under t.TempDir()
//
// # Timestamps
//
// Quota timestamps are stored as integer epoch seconds.
//
// # Error Handling
//
//   - ErrNotFound: requested record does not exist
//
// All methods accept context.Context for cancellation support.
package store
