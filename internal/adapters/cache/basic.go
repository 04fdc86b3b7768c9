package cache

import (
	"sync"
	"time"
)

type basicCache[T any] struct {
	cache     map[string]Entry[T]
	cacheLock sync.Mutex
	nowFunc   func() time.Time
}

func (c *basicCache[T]) Store(entry Entry[T]) {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	c.cache[entry.Locator()] = entry
}

func (c *basicCache[T]) Lookup(locator string) (Entry[T], bool) {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	entry, ok := c.cache[locator]
	if !ok {
		return Entry[T]{}, false
	}

	if entry.IsExpired(c.nowFunc()) {
		delete(c.cache, locator)
		return Entry[T]{}, false
	}

	return entry, true
}

func (c *basicCache[T]) len() int {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	return len(c.cache)
}

func NewBasicCache[T any](nowFunc func() time.Time) *basicCache[T] {
	return &basicCache[T]{
		cache:   make(map[string]Entry[T]),
		nowFunc: nowFunc,
	}
}
