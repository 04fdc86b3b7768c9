package app_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Marks callbacks as running on the executor
type recordingExecutor struct {
	inner    app.Executor
	executed atomic.Int64
	onExec   atomic.Bool
}

func (r *recordingExecutor) Execute(f func()) {
	r.executed.Add(1)
	r.inner.Execute(func() {
		r.onExec.Store(true)
		defer r.onExec.Store(false)
		f()
	})
}

func TestLoadFunc(t *testing.T) {
	t.Parallel()

	t.Run("cache hit", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		fetcher := newMockFetcher(t, numberedResponses)
		loader, c := newStringLoader(t, fetcher, clock)
		c.Store(cache.NewEntry(locator, "cached", clock.Now()))

		serial := app.NewSerialExecutor()
		executor := &recordingExecutor{inner: serial}

		var calls atomic.Int64
		var got string
		var gotErr error
		var onExecutor bool
		loader.LoadFunc(t.Context(), locator, executor, func(resource string, err error) {
			calls.Add(1)
			got, gotErr = resource, err
			onExecutor = executor.onExec.Load()
		})
		serial.Close()

		require.Equal(t, int64(1), calls.Load())
		require.Equal(t, int64(1), executor.executed.Load())
		require.True(t, onExecutor)
		require.NoError(t, gotErr)
		require.Equal(t, "cached", got)
		require.Equal(t, 0, fetcher.TotalCalls())
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		t.Parallel()

		const n = 10

		clock := newClock()
		fetcher := newMockFetcher(t, numberedResponses)
		fetcher.release = make(chan struct{})
		loader, _ := newStringLoader(t, fetcher, clock)

		serial := app.NewSerialExecutor()
		executor := &recordingExecutor{inner: serial}

		var wg sync.WaitGroup
		wg.Add(n)
		var mu sync.Mutex
		results := []loadResult{}
		for range n {
			loader.LoadFunc(t.Context(), locator, executor, func(resource string, err error) {
				defer wg.Done()
				assert.True(t, executor.onExec.Load())
				mu.Lock()
				defer mu.Unlock()
				results = append(results, loadResult{resource: resource, err: err})
			})
		}

		require.Eventually(t, func() bool {
			return loader.Waiting() == n
		}, 5*time.Second, time.Millisecond)
		close(fetcher.release)

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			require.FailNow(t, "callbacks were not delivered")
		}
		serial.Close()

		require.Equal(t, 1, fetcher.Calls(locator))
		require.Equal(t, int64(n), executor.executed.Load())
		require.Len(t, results, n)
		for _, result := range results {
			require.NoError(t, result.err)
			require.Equal(t, locator+"#1", result.resource)
		}
	})

	t.Run("failure is delivered", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		fetchErr := fmt.Errorf("%w: no data", domain.ErrEmptyData)
		fetcher := newMockFetcher(t, errorResponses(fetchErr))
		loader, _ := newStringLoader(t, fetcher, clock)

		delivered := make(chan error, 2)
		loader.LoadFunc(t.Context(), locator, app.InlineExecutor, func(resource string, err error) {
			assert.Empty(t, resource)
			delivered <- err
		})

		select {
		case err := <-delivered:
			require.Equal(t, fetchErr, err)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "callback was not delivered")
		}

		// Exactly once
		select {
		case <-delivered:
			require.FailNow(t, "callback delivered twice")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
