package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/econpulse/econpulse/internal/application"
	"github.com/econpulse/econpulse/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeData writes the standard success envelope around data.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}

// writeError writes the standard error envelope with the given status code.
func writeError(w http.ResponseWriter, status int, errMsg string) {
	writeJSON(w, status, errorResponse{Error: errMsg})
}

// writeErrorMessage writes the error envelope with an additional
// human-readable message.
func writeErrorMessage(w http.ResponseWriter, status int, errMsg, message string) {
	writeJSON(w, status, errorResponse{Error: errMsg, Message: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// dataResponse is the standard success envelope.
type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// messageResponse is the success envelope for operations that return no data.
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GenerateKeyRequest is the JSON body for the key issuance endpoint.
type GenerateKeyRequest struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Name           string `json:"name,omitempty"`
	Environment    string `json:"environment,omitempty"`
}

// IssuedKeyResponse is the one-time issuance payload. Key carries the full
// secret and is never returned by any other endpoint.
type IssuedKeyResponse struct {
	ID        int64  `json:"id"`
	Key       string `json:"key"`
	KeyPrefix string `json:"keyPrefix"`
	KeySuffix string `json:"keySuffix"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

// KeyResponse is the masked representation of an API key.
type KeyResponse struct {
	ID        int64        `json:"id"`
	MaskedKey string       `json:"maskedKey"`
	Name      string       `json:"name"`
	Status    string       `json:"status"`
	RateLimit KeyRateLimit `json:"rateLimit"`
	Usage     KeyUsage     `json:"usage"`
	CreatedAt string       `json:"createdAt"`
	ExpiresAt string       `json:"expiresAt,omitempty"`
}

// KeyRateLimit is the quota configuration attached to a key.
type KeyRateLimit struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"windowSeconds"`
}

// KeyUsage is the advisory usage accounting attached to a key.
type KeyUsage struct {
	TotalRequests int64  `json:"totalRequests"`
	LastUsedAt    string `json:"lastUsedAt,omitempty"`
}

// ScopedKeysRequest is the JSON body for suspend and reactivate.
type ScopedKeysRequest struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// AffectedKeysResponse reports how many keys a suspend or reactivate touched.
type AffectedKeysResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Affected int64  `json:"affected"`
}

// RevokeKeyRequest is the JSON body for the revoke endpoint.
type RevokeKeyRequest struct {
	UserID string `json:"userId"`
}

// RenameKeyRequest is the JSON body for the rename endpoint.
type RenameKeyRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// EventResponse is the JSON representation of a tracked indicator.
type EventResponse struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Category   string `json:"category"`
	Country    string `json:"country"`
	Importance string `json:"importance"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// toIssuedKeyResponse converts an issuance result to its JSON representation.
func toIssuedKeyResponse(issued *application.IssuedKey) IssuedKeyResponse {
	return IssuedKeyResponse{
		ID:        issued.ID,
		Key:       issued.Key,
		KeyPrefix: issued.Prefix,
		KeySuffix: issued.Suffix,
		Name:      issued.Name,
		Message:   "Store this key securely. It will not be shown again.",
	}
}

// toKeyResponse converts a domain APIKey to its masked JSON representation.
func toKeyResponse(key model.APIKey) KeyResponse {
	resp := KeyResponse{
		ID:        key.ID,
		MaskedKey: key.Masked(),
		Name:      key.Name,
		Status:    string(key.Status),
		RateLimit: KeyRateLimit{
			Requests:      key.RateLimitRequests,
			WindowSeconds: key.RateLimitWindow,
		},
		Usage: KeyUsage{
			TotalRequests: key.TotalRequests,
		},
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
	}

	if key.LastUsedAt != nil {
		resp.Usage.LastUsedAt = key.LastUsedAt.UTC().Format(time.RFC3339)
	}
	if key.ExpiresAt != nil {
		resp.ExpiresAt = key.ExpiresAt.UTC().Format(time.RFC3339)
	}

	return resp
}

// toEventResponse converts a domain EconomicEvent to its JSON representation.
func toEventResponse(ev model.EconomicEvent) EventResponse {
	return EventResponse{
		Name:       ev.Name,
		Slug:       ev.Slug,
		Category:   ev.Category,
		Country:    ev.Country,
		Importance: string(ev.Importance),
	}
}
