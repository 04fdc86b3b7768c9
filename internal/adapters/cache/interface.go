package cache

// Cache is a thread safe locator -> Entry store
//
// Implementations never return an expired entry, and remove expired entries on lookup.
type Cache[T any] interface {
	// Insert or replace the entry for entry.Locator()
	Store(entry Entry[T])
	// Get the entry for the locator if it is present and not expired
	Lookup(locator string) (Entry[T], bool)
}
