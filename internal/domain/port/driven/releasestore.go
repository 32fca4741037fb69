package driven

import (
	"context"
	"time"

	"github.com/econpulse/econpulse/internal/domain/model"
)

// ReleaseStore defines the driven port for the economic release feed.
//
// ListUpdatedSince returns releases (joined to their events) whose rows were
// modified after the given instant, newest first, capped at limit. It is the
// feed the change detector samples; the core is indifferent to how the rows
// were produced. UpsertEvent and UpsertRelease are the write path used by the
// ingestion collaborators.
type ReleaseStore interface {
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]model.ReleaseUpdate, error)
	LatestByEvent(ctx context.Context) ([]model.ReleaseUpdate, error)
	ListEvents(ctx context.Context) ([]model.EconomicEvent, error)
	UpsertEvent(ctx context.Context, ev model.EconomicEvent) (int64, error)
	UpsertRelease(ctx context.Context, rel model.Release) error
}
