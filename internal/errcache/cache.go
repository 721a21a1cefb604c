// Package errcache memoizes recently-seen fetch failures by content hash,
// so concurrent or closely-spaced Fetcher attempts against a hash the
// repository is currently failing to serve short-circuit instead of each
// independently exhausting their own retry budget. Adapted from
// errcache/cache.go.
package errcache

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrCache is a time-bounded, resizable cache of hash -> last-seen error.
type ErrCache struct {
	cache *cache.Cache
	mu    sync.Mutex
}

// New returns an ErrCache whose entries expire after expiration.
func New(expiration time.Duration) *ErrCache {
	return &ErrCache{cache: cache.New(expiration, expiration*2)}
}

// Resize rebuilds the cache with a new expiration, carrying over existing
// entries.
func (e *ErrCache) Resize(expiration time.Duration) {
	e.mu.Lock()
	e.cache = cache.NewFrom(expiration, expiration*2, e.cache.Items())
	e.mu.Unlock()
}

// Get returns the last error recorded for hash, or nil if none is cached.
func (e *ErrCache) Get(hash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.cache.Get(hash); ok {
		return err.(error)
	}
	return nil
}

// Set records err as the most recent failure seen for hash.
func (e *ErrCache) Set(hash string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Set(hash, err, cache.DefaultExpiration)
}
