package driven

import (
	"context"
	"errors"

	"github.com/econpulse/econpulse/internal/domain/model"
)

// Sentinel errors returned by APIKeyStore implementations.
var (
	// ErrKeyNotFound indicates the key does not exist, is not owned by the
	// caller, or is not in a state the operation applies to.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrKeyLimitReached indicates the owner already holds the maximum number
	// of simultaneously active keys.
	ErrKeyLimitReached = errors.New("active api key limit reached")
)

// APIKeyStore defines the driven port for API key persistence.
//
// Insert enforces the per-user active-key cap atomically and returns
// ErrKeyLimitReached when it is hit. Revoke only transitions active keys and
// returns ErrKeyNotFound otherwise; revocation is terminal. Suspend and
// Reactivate return the number of keys affected and are idempotent. RecordUsage
// is the advisory usage counter update fired after successful authentication.
type APIKeyStore interface {
	Insert(ctx context.Context, key model.APIKey) (int64, error)
	GetByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	ListByUser(ctx context.Context, userID string) ([]model.APIKey, error)
	Revoke(ctx context.Context, id int64, userID string) error
	Suspend(ctx context.Context, userID, subscriptionID string) (int64, error)
	Reactivate(ctx context.Context, userID, subscriptionID string) (int64, error)
	Rename(ctx context.Context, id int64, userID, name string) error
	RecordUsage(ctx context.Context, id int64) error
}
