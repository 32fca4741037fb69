package httphandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/econpulse/econpulse/internal/application"
	"github.com/econpulse/econpulse/internal/domain/model"
	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// contextKey is a private type for request context values.
type contextKey int

const keyIdentityContextKey contextKey = iota

// KeyIdentity is the authenticated caller attached to the request context
// after a successful API key check.
type KeyIdentity struct {
	ID                int64
	UserID            string
	SubscriptionID    string
	Name              string
	KeyHash           string
	RateLimitRequests int
	RateLimitWindow   int // seconds
}

// KeyIdentityFrom extracts the authenticated key identity from a request
// context. The second return is false on unauthenticated requests.
func KeyIdentityFrom(ctx context.Context) (*KeyIdentity, bool) {
	identity, ok := ctx.Value(keyIdentityContextKey).(*KeyIdentity)
	return identity, ok
}

// apiKeyAuth authenticates requests with an API key from the X-API-Key header
// or the api_key query parameter. Format is checked before any hashing or
// lookup. On success the key identity is attached to the request context and
// the advisory usage counters are updated on a detached goroutine that never
// affects the response.
func apiKeyAuth(keys driven.APIKeyStore, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			presented = r.URL.Query().Get("api_key")
		}

		if presented == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "API key required",
				"Please provide an API key via X-API-Key header or api_key query parameter")
			return
		}

		if !application.ValidKeyFormat(presented) {
			writeError(w, http.StatusUnauthorized, "Invalid API key format")
			return
		}

		record, err := keys.GetByHash(r.Context(), application.HashKey(presented))
		if err != nil {
			logger.Error("api key lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if record == nil {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		switch record.Status {
		case model.KeyStatusActive:
			// Proceed to the expiry check below.
		case model.KeyStatusSuspended:
			writeErrorMessage(w, http.StatusForbidden, "API key is suspended",
				"Your subscription may have lapsed. Please check your billing status.")
			return
		case model.KeyStatusRevoked:
			writeErrorMessage(w, http.StatusForbidden, "API key is revoked",
				"This API key has been revoked.")
			return
		case model.KeyStatusExpired:
			writeErrorMessage(w, http.StatusForbidden, "API key is expired",
				"This API key has been expired.")
			return
		default:
			writeError(w, http.StatusForbidden, "API key is "+string(record.Status))
			return
		}

		// Expiry is derived and always checked, even while status says active.
		if record.Expired(time.Now()) {
			writeError(w, http.StatusForbidden, "API key expired")
			return
		}

		identity := &KeyIdentity{
			ID:                record.ID,
			UserID:            record.UserID,
			SubscriptionID:    record.SubscriptionID,
			Name:              record.Name,
			KeyHash:           record.KeyHash,
			RateLimitRequests: record.RateLimitRequests,
			RateLimitWindow:   record.RateLimitWindow,
		}

		// Usage accounting is best-effort and must never slow down or fail
		// the request; fire it with its own context and error boundary.
		go func(id int64) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := keys.RecordUsage(ctx, id); err != nil {
				logger.Error("failed to record api key usage", "key_id", id, "error", err)
			}
		}(record.ID)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyIdentityContextKey, identity)))
	})
}

// rateLimit enforces the fixed-window quota of the authenticated key. The
// allow/deny decision reads the current count, then the counter is bumped with
// a single atomic upsert; a concurrent burst may land one request over at the
// window boundary but counts are never lost. A failed upsert denies the
// request rather than allowing unmetered traffic.
func rateLimit(quotas driven.QuotaStore, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := KeyIdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusInternalServerError, "rate limiter requires authenticated request")
			return
		}

		now := time.Now().Unix()
		window := int64(identity.RateLimitWindow)
		windowStart := now - now%window
		reset := windowStart + window

		count, err := quotas.Count(r.Context(), identity.KeyHash, windowStart)
		if err != nil {
			logger.Error("quota counter read failed", "key_id", identity.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(identity.RateLimitRequests))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count >= identity.RateLimitRequests {
			retryAfter := reset - now
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			writeErrorMessage(w, http.StatusTooManyRequests, "Rate limit exceeded",
				fmt.Sprintf("You have exceeded %d requests per %d seconds. Please wait %d seconds.",
					identity.RateLimitRequests, window, retryAfter))
			return
		}

		if err := quotas.Increment(r.Context(), identity.KeyHash, windowStart); err != nil {
			// Fail closed: without the counter the limit is unenforceable.
			logger.Error("quota counter increment failed", "key_id", identity.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		remaining := identity.RateLimitRequests - count - 1
		if remaining < 0 {
			remaining = 0
		}
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		next.ServeHTTP(w, r)
	})
}

// internalAuth guards the key-management endpoints, which are called only by
// the account frontend, with a shared secret in the X-Internal-Key header.
func internalAuth(internalKey string, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if internalKey == "" {
			logger.Warn("internal API key not configured")
			writeError(w, http.StatusInternalServerError, "Server configuration error")
			return
		}

		if r.Header.Get("X-Internal-Key") != internalKey {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
