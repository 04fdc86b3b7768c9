package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/reporting"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs the byte transfer for a locator
//
// Exactly one outcome is returned per call. Errors are one of
// domain.ErrInvalidRequest, domain.ErrNetwork, domain.ErrBadStatus,
// domain.ErrEmptyData or domain.ErrRateLimited.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

type Stats struct {
	Hits      int64
	Misses    int64
	Coalesced int64
	Fetches   int64
	Failures  int64
}

type loaderStats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	coalesced atomic.Int64
	fetches   atomic.Int64
	failures  atomic.Int64
}

// Loader gets resources by locator through a cache, with at most one outstanding
// fetch per locator. Concurrent callers for the same locator share the outcome of
// that fetch.
type Loader[T any] struct {
	cache   cache.Cache[T]
	fetcher Fetcher
	decode  func(data []byte) (T, error)
	nowFunc func() time.Time

	group    singleflight.Group
	inFlight atomic.Int64
	waiting  atomic.Int64

	stats loaderStats
}

func NewLoader[T any](
	cache cache.Cache[T],
	fetcher Fetcher,
	decode func(data []byte) (T, error),
	nowFunc func() time.Time,
) *Loader[T] {
	return &Loader[T]{
		cache:   cache,
		fetcher: fetcher,
		decode:  decode,
		nowFunc: nowFunc,
	}
}

func (l *Loader[T]) lookupCache(ctx context.Context, locator string) (T, bool) {
	entry, ok := l.cache.Lookup(locator)
	if !ok {
		var empty T
		return empty, false
	}

	l.stats.hits.Add(1)
	metrics.cacheHits.Add(ctx, 1)
	logging.FromContext(ctx).InfoContext(ctx, "Loading resource", "cache", "hit")
	return entry.Resource(), true
}

// Load returns the resource for the locator
//
// Cache hits return without blocking. On a miss the caller either joins the
// outstanding fetch for the locator or starts one. Fetch errors are returned
// unchanged. Decode errors wrap domain.ErrDecode.
//
// The fetch is not canceled when ctx is, as other callers may be waiting on it.
func (l *Loader[T]) Load(ctx context.Context, locator string) (T, error) {
	ctx = logging.AddLocatorToContext(ctx, locator)
	ctx = reporting.AddLocatorToContext(ctx, locator)

	if resource, ok := l.lookupCache(ctx, locator); ok {
		return resource, nil
	}

	l.stats.misses.Add(1)
	metrics.cacheMisses.Add(ctx, 1)

	// Only the closure of the caller that starts the call runs. It is written
	// before the result is sent, so reading it after the receive is safe.
	owner := false
	resultChan := l.group.DoChan(locator, func() (any, error) {
		owner = true

		// The previous call stores to the cache before singleflight forgets it,
		// so a call started right after a fetch finished sees the new entry.
		if resource, ok := l.lookupCache(ctx, locator); ok {
			return resource, nil
		}

		logging.FromContext(ctx).InfoContext(ctx, "Loading resource", "cache", "miss")
		l.inFlight.Add(1)
		defer l.inFlight.Add(-1)

		return l.fetch(ctx, locator)
	})

	l.waiting.Add(1)
	result := <-resultChan
	l.waiting.Add(-1)

	if owner && result.Shared {
		logging.FromContext(ctx).InfoContext(ctx, "Delivered shared fetch outcome", "success", result.Err == nil)
	}
	if !owner {
		l.stats.coalesced.Add(1)
		metrics.coalesced.Add(ctx, 1)
		logging.FromContext(ctx).InfoContext(ctx, "Loading resource", "cache", "wait")
	}

	if result.Err != nil {
		var empty T
		return empty, result.Err
	}
	resource, _ := result.Val.(T)
	return resource, nil
}

func (l *Loader[T]) fetch(ctx context.Context, locator string) (resource T, err error) {
	ctx = context.WithoutCancel(ctx)

	ctx, span := tracer.Start(ctx, "Loader.fetch", trace.WithAttributes(attribute.String("locator", locator)))
	defer span.End()

	l.stats.fetches.Add(1)
	start := time.Now()
	outcome := "success"

	defer func() {
		if r := recover(); r != nil {
			var empty T
			resource = empty
			err = fmt.Errorf("panic while loading resource: %v", r)
			reporting.Report(ctx, err)
			outcome = "panic"
		}

		if err != nil {
			l.stats.failures.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			metrics.fetchErrors.Add(ctx, 1, outcomeOption(outcome))
		}
		metrics.fetchDuration.Record(ctx, time.Since(start).Seconds(), outcomeOption(outcome))
	}()

	data, err := l.fetcher.Fetch(ctx, locator)
	if err != nil {
		outcome = fetchErrorOutcome(err)
		logging.FromContext(ctx).InfoContext(ctx, "Failed to fetch resource", slog.String("error", err.Error()))
		var empty T
		return empty, err
	}

	decoded, err := l.decode(data)
	if err != nil {
		outcome = "decode"
		if !errors.Is(err, domain.ErrDecode) {
			err = fmt.Errorf("%w: %w", domain.ErrDecode, err)
		}
		logging.FromContext(ctx).InfoContext(ctx, "Failed to decode resource", slog.String("error", err.Error()), slog.Int("contentLength", len(data)))
		var empty T
		return empty, err
	}

	l.cache.Store(cache.NewEntry(locator, decoded, l.nowFunc()))

	return decoded, nil
}

func fetchErrorOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrBadStatus):
		return "bad_status"
	case errors.Is(err, domain.ErrEmptyData):
		return "empty_data"
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Number of fetches currently running
func (l *Loader[T]) InFlight() int {
	return int(l.inFlight.Load())
}

// Number of callers blocked on a fetch, whether they started it or joined it
func (l *Loader[T]) Waiting() int {
	return int(l.waiting.Load())
}

func (l *Loader[T]) Stats() Stats {
	return Stats{
		Hits:      l.stats.hits.Load(),
		Misses:    l.stats.misses.Load(),
		Coalesced: l.stats.coalesced.Load(),
		Fetches:   l.stats.fetches.Load(),
		Failures:  l.stats.failures.Load(),
	}
}
