package model

import "time"

// KeyStatus represents the lifecycle state of an API key.
type KeyStatus string

const (
	KeyStatusActive    KeyStatus = "active"
	KeyStatusSuspended KeyStatus = "suspended"
	KeyStatusRevoked   KeyStatus = "revoked"
	KeyStatusExpired   KeyStatus = "expired"
)

// MaxActiveKeysPerUser caps the number of simultaneously active keys one
// account may hold. Issuance fails once the cap is reached.
const MaxActiveKeysPerUser = 5

// APIKey is the stored form of an issued API key. The raw secret is never
// persisted; KeyHash holds its SHA-256 fingerprint and is the lookup column.
// KeyPrefix and KeySuffix are the only fragments of the secret retained for
// display.
type APIKey struct {
	ID                int64
	KeyHash           string
	KeyPrefix         string
	KeySuffix         string
	Name              string
	UserID            string
	SubscriptionID    string // empty when the key is not tied to a billing subscription
	Status            KeyStatus
	RateLimitRequests int
	RateLimitWindow   int // seconds
	TotalRequests     int64
	LastUsedAt        *time.Time
	CreatedAt         time.Time
	ExpiresAt         *time.Time
	RevokedAt         *time.Time
}

// Masked returns the display form of the key: first 12 characters, an
// ellipsis, and the last 4 characters.
func (k APIKey) Masked() string {
	return k.KeyPrefix + "..." + k.KeySuffix
}

// Expired reports whether the key has passed its expiry timestamp. Expiry is
// a derived condition checked on every authentication, independent of Status.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
