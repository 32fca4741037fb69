package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/econpulse/econpulse/internal/domain/model"
	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.APIKeyStore = (*KeyRepo)(nil)

// KeyRepo is the SQLite implementation of the APIKeyStore port interface.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo creates a new KeyRepo backed by the given DB.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

const keyColumns = `id, key_hash, key_prefix, key_suffix, name, user_id,
	COALESCE(subscription_id, ''), status, rate_limit_requests, rate_limit_window,
	total_requests, last_used_at, created_at, expires_at, revoked_at`

// Insert stores a new API key after checking the owner's active-key count.
// The count check and insert run in one transaction on the single-connection
// writer, so concurrent inserts serialize and the cap holds exactly.
// Returns ErrKeyLimitReached when the owner already has the maximum number of
// active keys.
func (r *KeyRepo) Insert(ctx context.Context, key model.APIKey) (int64, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert key: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE user_id = ? AND status = 'active'`,
		key.UserID,
	).Scan(&active)
	if err != nil {
		return 0, fmt.Errorf("count active keys for %s: %w", key.UserID, err)
	}

	if active >= model.MaxActiveKeysPerUser {
		return 0, fmt.Errorf("insert key for %s: %w", key.UserID, driven.ErrKeyLimitReached)
	}

	var subscriptionID any
	if key.SubscriptionID != "" {
		subscriptionID = key.SubscriptionID
	}

	createdAt := key.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO api_keys (
			key_hash, key_prefix, key_suffix, name, user_id, subscription_id,
			status, rate_limit_requests, rate_limit_window, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.KeyHash, key.KeyPrefix, key.KeySuffix, key.Name, key.UserID, subscriptionID,
		string(key.Status), key.RateLimitRequests, key.RateLimitWindow,
		createdAt.Format(time.RFC3339), nullableTime(key.ExpiresAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert key for %s: %w", key.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert key id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert key: %w", err)
	}

	return id, nil
}

// GetByHash retrieves a key by its fingerprint. Returns nil, nil if no key
// matches.
func (r *KeyRepo) GetByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_hash = ?`

	key, err := scanKey(r.db.Reader.QueryRowContext(ctx, query, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key by hash: %w", err)
	}

	return key, nil
}

// ListByUser returns all keys owned by userID, newest first.
func (r *KeyRepo) ListByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys for %s: %w", userID, err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, *key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}

	return keys, nil
}

// Revoke marks an active key as revoked. Revocation is terminal: keys in any
// other state are left untouched and ErrKeyNotFound is returned, including on
// a repeated revoke.
func (r *KeyRepo) Revoke(ctx context.Context, id int64, userID string) error {
	const query = `UPDATE api_keys
		SET status = 'revoked', revoked_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND status = 'active'`

	result, err := r.db.Writer.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("revoke key %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("revoke key %d: %w", id, driven.ErrKeyNotFound)
	}

	return nil
}

// Suspend transitions the owner's active keys to suspended, optionally scoped
// to one subscription. Already-suspended keys are unaffected, so the call is
// idempotent. Returns the number of keys transitioned.
func (r *KeyRepo) Suspend(ctx context.Context, userID, subscriptionID string) (int64, error) {
	return r.transition(ctx, userID, subscriptionID, model.KeyStatusActive, model.KeyStatusSuspended)
}

// Reactivate transitions the owner's suspended keys back to active, optionally
// scoped to one subscription. Returns the number of keys transitioned.
func (r *KeyRepo) Reactivate(ctx context.Context, userID, subscriptionID string) (int64, error) {
	return r.transition(ctx, userID, subscriptionID, model.KeyStatusSuspended, model.KeyStatusActive)
}

func (r *KeyRepo) transition(ctx context.Context, userID, subscriptionID string, from, to model.KeyStatus) (int64, error) {
	query := `UPDATE api_keys SET status = ? WHERE user_id = ? AND status = ?`
	args := []any{string(to), userID, string(from)}

	if subscriptionID != "" {
		query += ` AND subscription_id = ?`
		args = append(args, subscriptionID)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("transition keys for %s to %s: %w", userID, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return rows, nil
}

// Rename updates a key's label. Metadata only; no status effect.
func (r *KeyRepo) Rename(ctx context.Context, id int64, userID, name string) error {
	const query = `UPDATE api_keys SET name = ? WHERE id = ? AND user_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, name, id, userID)
	if err != nil {
		return fmt.Errorf("rename key %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("rename key %d: %w", id, driven.ErrKeyNotFound)
	}

	return nil
}

// RecordUsage bumps the usage counters after a successful authentication.
// Loss-tolerant: callers fire it detached from the request path.
func (r *KeyRepo) RecordUsage(ctx context.Context, id int64) error {
	const query = `UPDATE api_keys
		SET last_used_at = CURRENT_TIMESTAMP, total_requests = total_requests + 1
		WHERE id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("record usage for key %d: %w", id, err)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*model.APIKey, error) {
	var key model.APIKey
	var status string
	var lastUsedAt, expiresAt, revokedAt sql.NullString
	var createdAt string

	err := s.Scan(
		&key.ID, &key.KeyHash, &key.KeyPrefix, &key.KeySuffix, &key.Name,
		&key.UserID, &key.SubscriptionID, &status, &key.RateLimitRequests,
		&key.RateLimitWindow, &key.TotalRequests, &lastUsedAt, &createdAt,
		&expiresAt, &revokedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Status = model.KeyStatus(status)

	key.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if key.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}
	if key.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if key.RevokedAt, err = parseNullTime(revokedAt); err != nil {
		return nil, fmt.Errorf("parse revoked_at: %w", err)
	}

	return &key, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}

	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
