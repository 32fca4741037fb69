package application

import (
	"context"
	"fmt"

	"github.com/econpulse/econpulse/internal/domain/model"
	"github.com/econpulse/econpulse/internal/domain/port/driven"
)

// KeyService orchestrates API key issuance and lifecycle transitions.
type KeyService struct {
	keys          driven.APIKeyStore
	defaultLimit  int
	defaultWindow int // seconds
}

// NewKeyService creates a KeyService. New keys are issued with the given
// default quota (requests per window, window in seconds).
func NewKeyService(keys driven.APIKeyStore, defaultLimit, defaultWindowSeconds int) *KeyService {
	return &KeyService{
		keys:          keys,
		defaultLimit:  defaultLimit,
		defaultWindow: defaultWindowSeconds,
	}
}

// IssuedKey is the one-time issuance result. Key is the full secret; it is
// never recoverable after this response.
type IssuedKey struct {
	ID     int64
	Key    string
	Prefix string
	Suffix string
	Name   string
}

// Issue generates a new key for the owner and stores its fingerprint.
// Returns driven.ErrKeyLimitReached when the owner already holds the maximum
// number of active keys.
func (s *KeyService) Issue(ctx context.Context, userID, subscriptionID, name, environment string) (*IssuedKey, error) {
	if name == "" {
		name = "Default Key"
	}

	gen, err := GenerateKey(environment)
	if err != nil {
		return nil, err
	}

	id, err := s.keys.Insert(ctx, model.APIKey{
		KeyHash:           gen.Hash,
		KeyPrefix:         gen.Prefix,
		KeySuffix:         gen.Suffix,
		Name:              name,
		UserID:            userID,
		SubscriptionID:    subscriptionID,
		Status:            model.KeyStatusActive,
		RateLimitRequests: s.defaultLimit,
		RateLimitWindow:   s.defaultWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("issue key: %w", err)
	}

	return &IssuedKey{
		ID:     id,
		Key:    gen.Key,
		Prefix: gen.Prefix,
		Suffix: gen.Suffix,
		Name:   name,
	}, nil
}

// ListByUser returns all keys owned by userID, newest first. Secrets are not
// recoverable; callers display model.APIKey.Masked().
func (s *KeyService) ListByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	return s.keys.ListByUser(ctx, userID)
}

// Revoke terminally revokes an active key owned by userID.
func (s *KeyService) Revoke(ctx context.Context, id int64, userID string) error {
	return s.keys.Revoke(ctx, id, userID)
}

// Suspend suspends the owner's active keys, optionally scoped to one
// subscription (a lapsed payment suspends only the keys tied to it).
func (s *KeyService) Suspend(ctx context.Context, userID, subscriptionID string) (int64, error) {
	return s.keys.Suspend(ctx, userID, subscriptionID)
}

// Reactivate restores the owner's suspended keys to active with their quota
// parameters intact.
func (s *KeyService) Reactivate(ctx context.Context, userID, subscriptionID string) (int64, error) {
	return s.keys.Reactivate(ctx, userID, subscriptionID)
}

// Rename updates a key's label.
func (s *KeyService) Rename(ctx context.Context, id int64, userID, name string) error {
	return s.keys.Rename(ctx, id, userID, name)
}
