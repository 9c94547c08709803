// package cache provides the key/value stores used to keep the responses
// of idempotent batch operations between batches
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("value not found in the cache")

// NoExpiration keeps a value until it is deleted
const NoExpiration time.Duration = -1

// Cache stores raw values by key
type Cache interface {
	Set(ctx context.Context, key string, data []byte, expiration time.Duration) error
	// Get returns ErrNotFound when key is missing or expired
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Healthcheck(ctx context.Context) error
}
