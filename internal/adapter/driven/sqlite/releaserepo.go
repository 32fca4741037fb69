package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/econpulse/econpulse/internal/domain/model"
	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReleaseStore = (*ReleaseRepo)(nil)

// ReleaseRepo is the SQLite implementation of the ReleaseStore port interface.
type ReleaseRepo struct {
	db *DB
}

// NewReleaseRepo creates a new ReleaseRepo backed by the given DB.
func NewReleaseRepo(db *DB) *ReleaseRepo {
	return &ReleaseRepo{db: db}
}

const updateColumns = `e.slug, e.name, e.country, e.category, e.importance,
	r.release_date, r.actual, r.previous, r.forecast, r.unit, r.updated_at`

// ListUpdatedSince returns releases modified after the given instant, newest
// first, capped at limit. This is the feed the change detector samples.
func (r *ReleaseRepo) ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]model.ReleaseUpdate, error) {
	query := `SELECT ` + updateColumns + `
		FROM releases r
		JOIN events e ON r.event_id = e.id
		WHERE r.updated_at > ?
		ORDER BY r.updated_at DESC
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, since.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("list updated releases: %w", err)
	}
	defer rows.Close()

	return collectUpdates(rows)
}

// LatestByEvent returns the most recent published release for each event.
func (r *ReleaseRepo) LatestByEvent(ctx context.Context) ([]model.ReleaseUpdate, error) {
	query := `SELECT ` + updateColumns + `
		FROM releases r
		JOIN events e ON r.event_id = e.id
		WHERE r.actual IS NOT NULL
		  AND r.release_date = (
			SELECT MAX(r2.release_date) FROM releases r2
			WHERE r2.event_id = r.event_id AND r2.actual IS NOT NULL
		  )
		ORDER BY e.slug`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list latest releases: %w", err)
	}
	defer rows.Close()

	return collectUpdates(rows)
}

// ListEvents returns all tracked indicators ordered by slug.
func (r *ReleaseRepo) ListEvents(ctx context.Context) ([]model.EconomicEvent, error) {
	const query = `SELECT id, name, slug, category, country, importance FROM events ORDER BY slug`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.EconomicEvent
	for rows.Next() {
		var ev model.EconomicEvent
		var importance string
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Slug, &ev.Category, &ev.Country, &importance); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Importance = model.Importance(importance)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// UpsertEvent inserts or updates an indicator by slug and returns its id.
func (r *ReleaseRepo) UpsertEvent(ctx context.Context, ev model.EconomicEvent) (int64, error) {
	const query = `INSERT INTO events (name, slug, category, country, importance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			country = excluded.country,
			importance = excluded.importance`

	if _, err := r.db.Writer.ExecContext(ctx, query,
		ev.Name, ev.Slug, ev.Category, ev.Country, string(ev.Importance)); err != nil {
		return 0, fmt.Errorf("upsert event %s: %w", ev.Slug, err)
	}

	var id int64
	err := r.db.Writer.QueryRowContext(ctx, `SELECT id FROM events WHERE slug = ?`, ev.Slug).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve event id for %s: %w", ev.Slug, err)
	}

	return id, nil
}

// UpsertRelease inserts or updates the release for (event, date), bumping
// updated_at so the change detector's trailing-window query picks it up.
func (r *ReleaseRepo) UpsertRelease(ctx context.Context, rel model.Release) error {
	updatedAt := rel.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO releases (event_id, release_date, actual, forecast, previous, unit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, release_date) DO UPDATE SET
			actual = excluded.actual,
			forecast = excluded.forecast,
			previous = excluded.previous,
			unit = excluded.unit,
			updated_at = excluded.updated_at`

	if _, err := r.db.Writer.ExecContext(ctx, query,
		rel.EventID, rel.ReleaseDate, nullableFloat(rel.Actual), nullableFloat(rel.Forecast),
		nullableFloat(rel.Previous), rel.Unit, updatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("upsert release for event %d on %s: %w", rel.EventID, rel.ReleaseDate, err)
	}

	return nil
}

func collectUpdates(rows *sql.Rows) ([]model.ReleaseUpdate, error) {
	var updates []model.ReleaseUpdate
	for rows.Next() {
		var u model.ReleaseUpdate
		var importance, updatedAt string
		var actual, previous, forecast sql.NullFloat64

		err := rows.Scan(&u.EventSlug, &u.EventName, &u.Country, &u.Category, &importance,
			&u.ReleaseDate, &actual, &previous, &forecast, &u.Unit, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan release update: %w", err)
		}

		u.Importance = model.Importance(importance)
		u.Actual = floatPtr(actual)
		u.Previous = floatPtr(previous)
		u.Forecast = floatPtr(forecast)

		u.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}

		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate release updates: %w", err)
	}

	return updates, nil
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
