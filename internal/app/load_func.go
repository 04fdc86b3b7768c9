package app

import "context"

// LoadFunc loads the resource and calls callback exactly once with the outcome, on executor
//
// Cache hits are delivered to the executor right away. Misses are loaded on a new
// goroutine, sharing the coalescing of Load.
func (l *Loader[T]) LoadFunc(ctx context.Context, locator string, executor Executor, callback func(T, error)) {
	if resource, ok := l.lookupCache(ctx, locator); ok {
		executor.Execute(func() {
			callback(resource, nil)
		})
		return
	}

	go func() {
		resource, err := l.Load(ctx, locator)
		executor.Execute(func() {
			callback(resource, err)
		})
	}()
}
