// Package dedup remembers recently seen statuses so that a post delivered
// twice, e.g. after a stream reconnect or by two federated instances, is only
// reported once.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded set of status keys. Keys are evicted when the cache is
// full or once they are older than the configured TTL.
//
// A status is known by one global key, its URI, and by one alias per
// instance that delivered it, since delete events only carry the
// instance-local id.
type Cache struct {
	mu      sync.Mutex
	keys    *expirable.LRU[string, struct{}]
	aliases *expirable.LRU[string, string]
}

// New returns a Cache holding at most size keys for up to ttl each. A zero
// ttl keeps keys until they are pushed out by newer ones.
func New(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dedup: invalid cache size %d, must be > 0", size)
	}

	if ttl < 0 {
		return nil, fmt.Errorf("dedup: invalid ttl %s, must be >= 0", ttl)
	}

	return &Cache{
		keys:    expirable.NewLRU[string, struct{}](size, nil, ttl),
		aliases: expirable.NewLRU[string, string](size, nil, ttl),
	}, nil
}

// Seen records key and reports whether it was already present. A non-empty
// alias is remembered as another name for key that Forget accepts, even
// when key was already present.
func (c *Cache) Seen(key, alias string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if alias != "" {
		c.aliases.Add(alias, key)
	}

	// Get, unlike Contains, ignores entries that expired but were not swept
	// yet.
	if _, ok := c.keys.Get(key); ok {
		return true
	}

	c.keys.Add(key, struct{}{})

	return false
}

// Forget removes the key known as alias, so a later update for the same
// status is reported again. An alias that was never recorded is treated as
// a key.
func (c *Cache) Forget(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.aliases.Get(alias)
	if !ok {
		key = alias
	}

	c.aliases.Remove(alias)
	c.keys.Remove(key)
}

// Len returns the number of keys currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.keys.Len()
}
