package kvstore

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/guarzo/storefront/common"
)

const cleanupInterval = 0 // entries never expire, so no janitor

var _ common.KVStore = (*memoryStore)(nil)

type memoryStore struct {
	// mu makes multi-key writes atomic with respect to readers; go-cache
	// only locks per call.
	mu    sync.RWMutex
	cache *cache.Cache
}

// NewMemoryStore returns a process-local KVStore. Sessions do not survive a
// restart; useful for tests and short-lived tools.
func NewMemoryStore() common.KVStore {
	return &memoryStore{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (c *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, found := c.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	return cloneBytes(value.([]byte)), true, nil
}

func (c *memoryStore) GetMulti(_ context.Context, keys ...string) (map[string][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if value, found := c.cache.Get(k); found {
			out[k] = cloneBytes(value.([]byte))
		}
	}
	return out, nil
}

func (c *memoryStore) SetMulti(_ context.Context, entries map[string][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range entries {
		c.cache.Set(k, cloneBytes(v), cache.NoExpiration)
	}
	return nil
}

func (c *memoryStore) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		c.cache.Delete(k)
	}
	return nil
}

// cloneBytes keeps callers from mutating what the cache holds.
func cloneBytes(b []byte) []byte {
	buf := make([]byte, len(b))
	copy(buf, b)
	return buf
}
