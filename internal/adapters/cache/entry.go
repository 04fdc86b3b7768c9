package cache

import "time"

// Entries older than TTL are treated as missing
const TTL = 60 * time.Second

// Entry is a fetched resource together with the time it was fetched
type Entry[T any] struct {
	locator   string
	resource  T
	fetchedAt time.Time
}

func NewEntry[T any](locator string, resource T, fetchedAt time.Time) Entry[T] {
	return Entry[T]{
		locator:   locator,
		resource:  resource,
		fetchedAt: fetchedAt,
	}
}

func (e Entry[T]) Locator() string {
	return e.locator
}

func (e Entry[T]) Resource() T {
	return e.resource
}

func (e Entry[T]) FetchedAt() time.Time {
	return e.fetchedAt
}

// An entry fetched exactly TTL ago is still fresh
func (e Entry[T]) IsExpired(now time.Time) bool {
	return now.Sub(e.fetchedAt) > TTL
}
