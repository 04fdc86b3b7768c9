package cache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type ttlCache[T any] struct {
	cache *ttlcache.Cache[string, Entry[T]]
	// Guards the check-then-delete in Lookup so a concurrent Store is never lost
	lock    sync.Mutex
	nowFunc func() time.Time
}

func (c *ttlCache[T]) Store(entry Entry[T]) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache.Set(entry.Locator(), entry, ttlcache.DefaultTTL)
}

func (c *ttlCache[T]) Lookup(locator string) (Entry[T], bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	item := c.cache.Get(locator)
	if item == nil {
		return Entry[T]{}, false
	}

	entry := item.Value()
	if entry.IsExpired(c.nowFunc()) {
		c.cache.Delete(locator)
		return Entry[T]{}, false
	}

	return entry, true
}

// The ttlcache janitor evicts entries that are never looked up again.
// Expiry on lookup is decided by nowFunc, not by ttlcache.
//
// Call the returned function to stop the janitor.
func NewTTLCache[T any](nowFunc func() time.Time) (*ttlCache[T], func()) {
	entryTTLCache := ttlcache.New[string, Entry[T]](
		ttlcache.WithTTL[string, Entry[T]](TTL),
		ttlcache.WithDisableTouchOnHit[string, Entry[T]](),
	)
	go entryTTLCache.Start()

	return &ttlCache[T]{
		cache:   entryTTLCache,
		nowFunc: nowFunc,
	}, entryTTLCache.Stop
}
