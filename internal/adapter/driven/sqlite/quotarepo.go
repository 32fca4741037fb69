package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.QuotaStore = (*QuotaRepo)(nil)

// QuotaRepo is the SQLite implementation of the QuotaStore port interface.
// One row per (key fingerprint, window start); counts only grow within a
// window, and stale windows are removed by the periodic sweep.
type QuotaRepo struct {
	db *DB
}

// NewQuotaRepo creates a new QuotaRepo backed by the given DB.
func NewQuotaRepo(db *DB) *QuotaRepo {
	return &QuotaRepo{db: db}
}

// Count returns the request count recorded for the window, or 0 when no row
// exists yet.
func (r *QuotaRepo) Count(ctx context.Context, keyHash string, windowStart int64) (int, error) {
	const query = `SELECT request_count FROM rate_limit_cache WHERE key_hash = ? AND window_start = ?`

	var count int
	err := r.db.Reader.QueryRowContext(ctx, query, keyHash, windowStart).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count quota window: %w", err)
	}

	return count, nil
}

// Increment atomically inserts or increments the counter for the window.
// The upsert is a single statement, so concurrent increments never lose
// counts even though the limiter's decision read happened earlier.
func (r *QuotaRepo) Increment(ctx context.Context, keyHash string, windowStart int64) error {
	const query = `INSERT INTO rate_limit_cache (key_hash, window_start, request_count)
		VALUES (?, ?, 1)
		ON CONFLICT (key_hash, window_start) DO UPDATE SET request_count = request_count + 1`

	if _, err := r.db.Writer.ExecContext(ctx, query, keyHash, windowStart); err != nil {
		return fmt.Errorf("increment quota window: %w", err)
	}

	return nil
}

// DeleteBefore removes counters whose window started before cutoff (epoch
// seconds) and returns how many rows were deleted.
func (r *QuotaRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM rate_limit_cache WHERE window_start < ?`

	result, err := r.db.Writer.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep quota windows: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return rows, nil
}
