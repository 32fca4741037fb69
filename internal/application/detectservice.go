package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/econpulse/econpulse/internal/domain/model"
	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// detectBatchLimit caps how many recently-updated rows one tick examines.
const detectBatchLimit = 50

// Broadcaster delivers a release update to interested live connections and
// returns how many received it.
type Broadcaster interface {
	BroadcastUpdate(update model.ReleaseUpdate) int
}

// releaseState is the last observation of one subject: the signature of its
// mutable fields and when it was last seen in the feed.
type releaseState struct {
	signature string
	seenAt    time.Time
}

// DetectService samples the release feed on a fixed interval and broadcasts a
// notification whenever a release's value changes. The last-seen map is owned
// by the service, lives only for the process lifetime, and is touched only
// from the Start loop, so it needs no lock.
type DetectService struct {
	releases    driven.ReleaseStore
	broadcaster Broadcaster
	interval    time.Duration
	lookback    time.Duration
	retention   time.Duration
	lastSeen    map[string]releaseState
}

// NewDetectService creates a DetectService. lookback is the trailing window
// each tick queries and must be at least the interval to avoid gaps; retention
// bounds how long an unchanged subject stays in the last-seen map.
func NewDetectService(releases driven.ReleaseStore, broadcaster Broadcaster, interval, lookback, retention time.Duration) *DetectService {
	return &DetectService{
		releases:    releases,
		broadcaster: broadcaster,
		interval:    interval,
		lookback:    lookback,
		retention:   retention,
		lastSeen:    make(map[string]releaseState),
	}
}

// Start begins the detection loop and blocks until the context is canceled.
// A failed tick is logged and the loop continues on the next one.
func (s *DetectService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("change detector stopped")
			return
		case <-ticker.C:
			if err := s.CheckOnce(ctx); err != nil {
				slog.Error("change detection cycle failed", "error", err)
			}
		}
	}
}

// CheckOnce runs a single detection pass: sample the feed, compare signatures
// against the last-seen map, broadcast changed releases with a published
// value, and evict stale map entries.
func (s *DetectService) CheckOnce(ctx context.Context) error {
	now := time.Now().UTC()

	rows, err := s.releases.ListUpdatedSince(ctx, now.Add(-s.lookback), detectBatchLimit)
	if err != nil {
		return fmt.Errorf("sample release feed: %w", err)
	}

	var emitted, delivered int
	for _, row := range rows {
		key := row.SubjectKey()
		sig := releaseSignature(row)

		prev, seen := s.lastSeen[key]
		s.lastSeen[key] = releaseState{signature: sig, seenAt: now}

		if seen && prev.signature == sig {
			// Ingestion rewrote an identical value; nothing to announce.
			continue
		}

		if row.Actual == nil {
			continue
		}

		emitted++
		delivered += s.broadcaster.BroadcastUpdate(row)
	}

	s.evict(now)

	if emitted > 0 {
		slog.Info("release updates broadcast",
			"updates", emitted,
			"deliveries", delivered,
			"sampled", len(rows),
		)
	}

	return nil
}

// evict drops subjects not observed within the retention horizon, so a
// release that stops updating is deterministically forgotten.
func (s *DetectService) evict(now time.Time) {
	for key, state := range s.lastSeen {
		if now.Sub(state.seenAt) > s.retention {
			delete(s.lastSeen, key)
		}
	}
}

// releaseSignature derives the change signature of a release from its mutable
// fields. Identical signatures across ticks mean no meaningful change.
func releaseSignature(u model.ReleaseUpdate) string {
	actual := "null"
	if u.Actual != nil {
		actual = fmt.Sprintf("%g", *u.Actual)
	}
	return actual + "_" + u.UpdatedAt.UTC().Format(time.RFC3339)
}
