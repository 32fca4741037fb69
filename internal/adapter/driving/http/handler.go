// Package httphandler is the HTTP driving adapter serving the REST API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/econpulse/econpulse/internal/application"
	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// StatsProvider reports live connection statistics for the stats endpoint.
type StatsProvider interface {
	Stats() (connected int, subscriptions map[string]int)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	keySvc      *application.KeyService
	keys        driven.APIKeyStore
	quotas      driven.QuotaStore
	releases    driven.ReleaseStore
	stats       StatsProvider
	internalKey string
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	keySvc *application.KeyService,
	keys driven.APIKeyStore,
	quotas driven.QuotaStore,
	releases driven.ReleaseStore,
	stats StatsProvider,
	internalKey string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		keySvc:      keySvc,
		keys:        keys,
		quotas:      quotas,
		releases:    releases,
		stats:       stats,
		internalKey: internalKey,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. wsHandler, when non-nil, is mounted on
// the websocket upgrade endpoint.
func NewServeMux(h *Handler, wsHandler http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/ws/stats", h.WSStats)

	// Key management is reachable only with the internal shared secret.
	keyMux := http.NewServeMux()
	keyMux.HandleFunc("POST /api/keys/generate", h.GenerateKey)
	keyMux.HandleFunc("GET /api/keys/user/{userID}", h.ListKeys)
	keyMux.HandleFunc("DELETE /api/keys/{keyID}", h.RevokeKey)
	keyMux.HandleFunc("POST /api/keys/suspend", h.SuspendKeys)
	keyMux.HandleFunc("POST /api/keys/reactivate", h.ReactivateKeys)
	keyMux.HandleFunc("PATCH /api/keys/{keyID}", h.RenameKey)
	mux.Handle("/api/keys/", internalAuth(h.internalKey, logger, keyMux))

	// Data endpoints require an API key and count against its quota.
	dataMux := http.NewServeMux()
	dataMux.HandleFunc("GET /api/releases/latest", h.LatestReleases)
	dataMux.HandleFunc("GET /api/events", h.ListEvents)
	protected := apiKeyAuth(h.keys, logger, rateLimit(h.quotas, logger, dataMux))
	mux.Handle("/api/releases/", protected)
	mux.Handle("/api/events", protected)

	if wsHandler != nil {
		mux.Handle("GET /ws", wsHandler)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WSStats reports live websocket connection statistics.
func (h *Handler) WSStats(w http.ResponseWriter, r *http.Request) {
	connected, subscriptions := h.stats.Stats()
	writeData(w, http.StatusOK, map[string]any{
		"connectedClients": connected,
		"subscriptions":    subscriptions,
	})
}

// GenerateKey issues a new API key. The full secret appears in this response
// and nowhere else, ever.
func (h *Handler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	issued, err := h.keySvc.Issue(r.Context(), req.UserID, req.SubscriptionID, req.Name, req.Environment)
	if errors.Is(err, driven.ErrKeyLimitReached) {
		writeErrorMessage(w, http.StatusBadRequest, "Maximum API keys reached",
			"You can have up to 5 active API keys. Please revoke an existing key first.")
		return
	}
	if err != nil {
		h.logger.Error("failed to generate api key", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	writeData(w, http.StatusCreated, toIssuedKeyResponse(issued))
}

// ListKeys returns the masked keys owned by a user.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	keys, err := h.keySvc.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list api keys", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	resp := make([]KeyResponse, 0, len(keys))
	for _, key := range keys {
		resp = append(resp, toKeyResponse(key))
	}

	writeData(w, http.StatusOK, resp)
}

// RevokeKey terminally revokes an active key.
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := strconv.ParseInt(r.PathValue("keyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req RevokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	err = h.keySvc.Revoke(r.Context(), keyID, req.UserID)
	if errors.Is(err, driven.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, "API key not found or already revoked")
		return
	}
	if err != nil {
		h.logger.Error("failed to revoke api key", "key_id", keyID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "API key revoked successfully"})
}

// SuspendKeys suspends a user's active keys, optionally scoped to one
// subscription.
func (h *Handler) SuspendKeys(w http.ResponseWriter, r *http.Request) {
	h.transitionKeys(w, r, "Suspended", h.keySvc.Suspend)
}

// ReactivateKeys restores a user's suspended keys to active.
func (h *Handler) ReactivateKeys(w http.ResponseWriter, r *http.Request) {
	h.transitionKeys(w, r, "Reactivated", h.keySvc.Reactivate)
}

func (h *Handler) transitionKeys(
	w http.ResponseWriter,
	r *http.Request,
	verb string,
	transition func(ctx context.Context, userID, subscriptionID string) (int64, error),
) {
	var req ScopedKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	affected, err := transition(r.Context(), req.UserID, req.SubscriptionID)
	if err != nil {
		h.logger.Error("failed to transition api keys", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update API keys")
		return
	}

	writeJSON(w, http.StatusOK, AffectedKeysResponse{
		Success:  true,
		Message:  fmt.Sprintf("%s %d API key(s)", verb, affected),
		Affected: affected,
	})
}

// RenameKey updates a key's label.
func (h *Handler) RenameKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := strconv.ParseInt(r.PathValue("keyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req RenameKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "userId and name are required")
		return
	}

	err = h.keySvc.Rename(r.Context(), keyID, req.UserID, req.Name)
	if errors.Is(err, driven.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to rename api key", "key_id", keyID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update API key")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "API key updated successfully"})
}

// LatestReleases returns the most recent published value for each indicator.
func (h *Handler) LatestReleases(w http.ResponseWriter, r *http.Request) {
	updates, err := h.releases.LatestByEvent(r.Context())
	if err != nil {
		h.logger.Error("failed to list latest releases", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeData(w, http.StatusOK, updates)
}

// ListEvents returns all tracked indicators.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.releases.ListEvents(r.Context())
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventResponse(ev))
	}

	writeData(w, http.StatusOK, resp)
}
