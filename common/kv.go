package common

import "context"

// KVStore is the persistent key/value storage behind the token store.
// Values are raw []byte; callers marshal/unmarshal as they need.
//
// GetMulti, SetMulti and Delete must apply all their keys as one unit: a
// read never observes half of a write, and either every key is
// written/removed or none is. The token store relies on this to keep the
// access/refresh pair consistent.
//
// Implementations in this repo:
//   - an in-memory store (go-cache)
//   - a JSON file on disk
//   - Redis
//   - Postgres (gorm)
type KVStore interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// GetMulti reads keys from one snapshot. Absent keys are left out of
	// the result.
	GetMulti(ctx context.Context, keys ...string) (map[string][]byte, error)
	// SetMulti writes all entries atomically.
	SetMulti(ctx context.Context, entries map[string][]byte) error
	// Delete removes all keys atomically. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
