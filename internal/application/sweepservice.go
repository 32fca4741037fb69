package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// SweepService periodically deletes quota counters whose windows ended long
// ago. The retention horizon must comfortably exceed the largest configured
// quota window or live counters could be swept mid-window; config validation
// enforces that contract.
type SweepService struct {
	quotas    driven.QuotaStore
	interval  time.Duration
	retention time.Duration
}

// NewSweepService creates a SweepService that removes counters older than
// retention every interval.
func NewSweepService(quotas driven.QuotaStore, interval, retention time.Duration) *SweepService {
	return &SweepService{
		quotas:    quotas,
		interval:  interval,
		retention: retention,
	}
}

// Start begins the sweep loop and blocks until the context is canceled.
// Sweep failures are logged and never fatal.
func (s *SweepService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("quota sweep stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				slog.Error("quota sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce deletes counters older than the retention horizon.
func (s *SweepService) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).Unix()

	deleted, err := s.quotas.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		slog.Info("swept expired quota counters", "deleted", deleted)
	}

	return nil
}
