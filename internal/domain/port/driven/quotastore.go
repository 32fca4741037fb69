package driven

import "context"

// QuotaStore defines the driven port for fixed-window request counters.
// Counters are keyed by (key fingerprint, window start epoch seconds).
//
// Increment must be a single atomic insert-or-increment so concurrent requests
// never lose counts; the limiter's allow/deny decision may read a count that is
// one request stale, but the counter itself is exact. DeleteBefore removes
// counters whose window started before the cutoff and returns how many were
// deleted.
type QuotaStore interface {
	Count(ctx context.Context, keyHash string, windowStart int64) (int, error)
	Increment(ctx context.Context, keyHash string, windowStart int64) error
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}
