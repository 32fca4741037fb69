package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/econpulse/econpulse/internal/domain/model"
)

func addTestEvent(t *testing.T, repo *ReleaseRepo, slug, country, category string, imp model.Importance) int64 {
	t.Helper()
	id, err := repo.UpsertEvent(context.Background(), model.EconomicEvent{
		Name:       "Event " + slug,
		Slug:       slug,
		Category:   category,
		Country:    country,
		Importance: imp,
	})
	require.NoError(t, err)
	return id
}

func f64(v float64) *float64 { return &v }

func TestReleaseRepo_UpsertEvent_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReleaseRepo(db)
	ctx := context.Background()

	id1 := addTestEvent(t, repo, "us-cpi", "US", "inflation", model.ImportanceHigh)

	// Upserting the same slug updates in place and resolves the same id.
	id2, err := repo.UpsertEvent(ctx, model.EconomicEvent{
		Name:       "CPI YoY",
		Slug:       "us-cpi",
		Category:   "inflation",
		Country:    "US",
		Importance: model.ImportanceMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CPI YoY", events[0].Name)
	assert.Equal(t, model.ImportanceMedium, events[0].Importance)
}

func TestReleaseRepo_ListEvents_OrderedBySlug(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReleaseRepo(db)

	addTestEvent(t, repo, "us-nfp", "US", "employment", model.ImportanceHigh)
	addTestEvent(t, repo, "de-ifo", "DE", "sentiment", model.ImportanceMedium)
	addTestEvent(t, repo, "gb-gdp", "GB", "growth", model.ImportanceHigh)

	events, err := repo.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "de-ifo", events[0].Slug)
	assert.Equal(t, "gb-gdp", events[1].Slug)
	assert.Equal(t, "us-nfp", events[2].Slug)
}

func TestReleaseRepo_UpsertRelease_ListUpdatedSince(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReleaseRepo(db)
	ctx := context.Background()

	eventID := addTestEvent(t, repo, "us-cpi", "US", "inflation", model.ImportanceHigh)

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID:     eventID,
		ReleaseDate: "2026-08-15",
		Actual:      f64(3.2),
		Forecast:    f64(3.1),
		Previous:    f64(3.4),
		Unit:        "%",
		UpdatedAt:   base,
	}))

	updates, err := repo.ListUpdatedSince(ctx, base.Add(-time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, "us-cpi", u.EventSlug)
	assert.Equal(t, "Event us-cpi", u.EventName)
	assert.Equal(t, "US", u.Country)
	assert.Equal(t, "inflation", u.Category)
	assert.Equal(t, model.ImportanceHigh, u.Importance)
	assert.Equal(t, "2026-08-15", u.ReleaseDate)
	require.NotNil(t, u.Actual)
	assert.InDelta(t, 3.2, *u.Actual, 1e-9)
	assert.Equal(t, "%", u.Unit)

	// Nothing modified after the cutoff.
	updates, err = repo.ListUpdatedSince(ctx, base.Add(time.Minute), 50)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestReleaseRepo_UpsertRelease_UpdateBumpsUpdatedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReleaseRepo(db)
	ctx := context.Background()

	eventID := addTestEvent(t, repo, "us-cpi", "US", "inflation", model.ImportanceHigh)

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID:     eventID,
		ReleaseDate: "2026-08-15",
		Forecast:    f64(3.1),
		UpdatedAt:   base,
	}))

	// Revision fills in the actual and moves the modification time forward.
	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID:     eventID,
		ReleaseDate: "2026-08-15",
		Actual:      f64(3.3),
		Forecast:    f64(3.1),
		UpdatedAt:   base.Add(2 * time.Minute),
	}))

	updates, err := repo.ListUpdatedSince(ctx, base.Add(time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].Actual)
	assert.InDelta(t, 3.3, *updates[0].Actual, 1e-9)
}

func TestReleaseRepo_ListUpdatedSince_NewestFirstAndLimited(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReleaseRepo(db)
	ctx := context.Background()

	eventID := addTestEvent(t, repo, "us-cpi", "US", "inflation", model.ImportanceHigh)

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.UpsertRelease(ctx, model.Release{
			EventID:     eventID,
			ReleaseDate: base.AddDate(0, 0, i).Format("2006-01-02"),
			Actual:      f64(float64(i)),
			UpdatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	updates, err := repo.ListUpdatedSince(ctx, base.Add(-time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "2026-08-17", updates[0].ReleaseDate)
	assert.Equal(t, "2026-08-16", updates[1].ReleaseDate)
}

func TestReleaseRepo_LatestByEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReleaseRepo(db)
	ctx := context.Background()

	cpiID := addTestEvent(t, repo, "us-cpi", "US", "inflation", model.ImportanceHigh)
	nfpID := addTestEvent(t, repo, "us-nfp", "US", "employment", model.ImportanceHigh)

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID: cpiID, ReleaseDate: "2026-07-15", Actual: f64(3.4), UpdatedAt: base,
	}))
	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID: cpiID, ReleaseDate: "2026-08-15", Actual: f64(3.2), UpdatedAt: base,
	}))
	// Scheduled but unpublished; must not win even though its date is later.
	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID: cpiID, ReleaseDate: "2026-09-15", Forecast: f64(3.0), UpdatedAt: base,
	}))
	require.NoError(t, repo.UpsertRelease(ctx, model.Release{
		EventID: nfpID, ReleaseDate: "2026-08-07", Actual: f64(185000), UpdatedAt: base,
	}))

	latest, err := repo.LatestByEvent(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	assert.Equal(t, "us-cpi", latest[0].EventSlug)
	assert.Equal(t, "2026-08-15", latest[0].ReleaseDate)
	require.NotNil(t, latest[0].Actual)
	assert.InDelta(t, 3.2, *latest[0].Actual, 1e-9)

	assert.Equal(t, "us-nfp", latest[1].EventSlug)
	assert.Equal(t, "2026-08-07", latest[1].ReleaseDate)
}
