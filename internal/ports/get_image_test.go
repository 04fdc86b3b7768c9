package ports_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/adapters/fetchclient"
	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/domaintest"
	"github.com/openmarket/imageloader/internal/ports"
	"github.com/openmarket/imageloader/internal/ratelimiting"
	"github.com/stretchr/testify/require"
)

type staticRateLimiter struct {
	allow bool
}

func (s *staticRateLimiter) Consume(key string) bool {
	return s.allow
}

func noopMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return next
}

func newImageRequest(locator string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/v1/image?url="+url.QueryEscape(locator), nil)
}

func TestGetImageHandler(t *testing.T) {
	t.Parallel()

	allowedOrigins, err := ports.NewDomainSuffixes("shop.example.com")
	require.NoError(t, err)

	pngData := domaintest.PNG(t, 4, 4)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	makeHandler := func(t *testing.T, loadImage func(ctx context.Context, locator string) (domain.Image, error), ipAllow bool) http.HandlerFunc {
		t.Helper()
		return ports.MakeGetImageHandler(
			loadImage,
			allowedOrigins,
			ratelimiting.NewRequestBasedRateLimiter(&staticRateLimiter{allow: ipAllow}, ratelimiting.IPKeyFunc),
			logger,
			noopMiddleware,
		)
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		locator := domaintest.NewLocator(t)
		called := 0
		handler := makeHandler(t, func(ctx context.Context, l string) (domain.Image, error) {
			called++
			require.Equal(t, locator, l)
			return domain.DecodeImage(pngData)
		}, true)

		req := newImageRequest(locator)
		req.Header.Set("Origin", "https://www.shop.example.com")
		w := httptest.NewRecorder()
		handler(w, req)

		resp := w.Result()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		require.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))
		require.Equal(t, fmt.Sprint(len(pngData)), resp.Header.Get("Content-Length"))
		require.Equal(t, "https://www.shop.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, pngData, body)
		require.Equal(t, 1, called)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			name       string
			err        error
			statusCode int
			cause      string
		}{
			{
				name:       "invalid request",
				err:        fmt.Errorf("%w: host 'evil.com' is not allowed", domain.ErrInvalidRequest),
				statusCode: http.StatusBadRequest,
				cause:      "invalid request: host 'evil.com' is not allowed",
			},
			{
				name:       "bad status",
				err:        fmt.Errorf("%w: upstream returned status code 404", domain.ErrBadStatus),
				statusCode: http.StatusBadGateway,
				cause:      "upstream returned an error",
			},
			{
				name:       "empty data",
				err:        fmt.Errorf("%w: empty response body", domain.ErrEmptyData),
				statusCode: http.StatusBadGateway,
				cause:      "upstream returned no data",
			},
			{
				name:       "decode",
				err:        fmt.Errorf("%w: image: unknown format", domain.ErrDecode),
				statusCode: http.StatusBadGateway,
				cause:      "upstream returned an invalid image",
			},
			{
				name:       "network",
				err:        fmt.Errorf("%w: connection refused", domain.ErrNetwork),
				statusCode: http.StatusGatewayTimeout,
				cause:      "upstream unavailable",
			},
			{
				name:       "upstream rate limited",
				err:        fmt.Errorf("%w: too many requests to upstream: images.example.com", domain.ErrRateLimited),
				statusCode: http.StatusServiceUnavailable,
				cause:      "upstream busy",
			},
			{
				name:       "unknown",
				err:        errors.New("something else"),
				statusCode: http.StatusInternalServerError,
				cause:      "internal server error",
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				handler := makeHandler(t, func(ctx context.Context, l string) (domain.Image, error) {
					return domain.Image{}, tc.err
				}, true)

				w := httptest.NewRecorder()
				handler(w, newImageRequest(domaintest.NewLocator(t)))

				resp := w.Result()
				require.Equal(t, tc.statusCode, resp.StatusCode)
				require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
				require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				require.Equal(t, map[string]any{"success": false, "cause": tc.cause}, body)
			})
		}
	})

	t.Run("invalid url parameter", func(t *testing.T) {
		t.Parallel()

		for _, target := range []string{
			"/v1/image",
			"/v1/image?url=",
			"/v1/image?url=" + url.QueryEscape("https://images.example.com/"+strings.Repeat("a", 2048)),
		} {
			t.Run(target[:min(len(target), 30)], func(t *testing.T) {
				t.Parallel()

				handler := makeHandler(t, func(ctx context.Context, l string) (domain.Image, error) {
					t.Fatal("Unreachable code executed")
					return domain.Image{}, nil
				}, true)

				w := httptest.NewRecorder()
				handler(w, httptest.NewRequest(http.MethodGet, target, nil))

				require.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})

	t.Run("rate limited by ip", func(t *testing.T) {
		t.Parallel()

		handler := makeHandler(t, func(ctx context.Context, l string) (domain.Image, error) {
			t.Fatal("Unreachable code executed")
			return domain.Image{}, nil
		}, false)

		w := httptest.NewRecorder()
		handler(w, newImageRequest(domaintest.NewLocator(t)))

		require.Equal(t, http.StatusTooManyRequests, w.Code)
		require.Equal(t, "1", w.Header().Get("Retry-After"))
		require.JSONEq(t, `{"success":false,"cause":"rate limit exceeded"}`, w.Body.String())
	})

	t.Run("cors preflight", func(t *testing.T) {
		t.Parallel()

		handler := makeHandler(t, func(ctx context.Context, l string) (domain.Image, error) {
			t.Fatal("Unreachable code executed")
			return domain.Image{}, nil
		}, true)

		req := httptest.NewRequest(http.MethodOptions, "/v1/image", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		w := httptest.NewRecorder()
		handler(w, req)

		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

// Serves the same bytes for every request and counts them
type staticFetcher struct {
	data  []byte
	calls atomic.Int64
}

func (s *staticFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	s.calls.Add(1)
	return s.data, nil
}

func TestGetImageUpstreamRateLimit(t *testing.T) {
	t.Parallel()

	allowedOrigins, err := ports.NewDomainSuffixes()
	require.NoError(t, err)

	newServer := func(t *testing.T, fetcher *staticFetcher) http.HandlerFunc {
		t.Helper()

		upstreamLimiter, stop := ratelimiting.NewTokenBucketRateLimiter(1, 1)
		t.Cleanup(stop)

		loader := app.NewImageLoader(
			cache.NewBasicCache[domain.Image](time.Now),
			fetchclient.NewRateLimitedFetcher(fetcher, upstreamLimiter),
			time.Now,
		)
		return ports.MakeGetImageHandler(
			app.BuildLoadImage(loader, nil),
			allowedOrigins,
			ratelimiting.NewRequestBasedRateLimiter(&staticRateLimiter{allow: true}, ratelimiting.IPKeyFunc),
			slog.New(slog.NewJSONHandler(io.Discard, nil)),
			noopMiddleware,
		)
	}

	t.Run("cache hits are never throttled", func(t *testing.T) {
		t.Parallel()

		const requests = 600

		fetcher := &staticFetcher{data: domaintest.PNG(t, 4, 4)}
		handler := newServer(t, fetcher)
		locator := domaintest.NewLocator(t)

		statusCounts := map[int]int{}
		for range requests {
			w := httptest.NewRecorder()
			handler(w, newImageRequest(locator))
			statusCounts[w.Code]++
		}

		require.Equal(t, map[int]int{http.StatusOK: requests}, statusCounts)
		require.Equal(t, int64(1), fetcher.calls.Load())
	})

	t.Run("fetches over the budget are rejected", func(t *testing.T) {
		t.Parallel()

		fetcher := &staticFetcher{data: domaintest.PNG(t, 4, 4)}
		handler := newServer(t, fetcher)

		w := httptest.NewRecorder()
		handler(w, newImageRequest("https://images.example.com/first.png"))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		handler(w, newImageRequest("https://images.example.com/second.png"))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		require.Equal(t, "1", w.Header().Get("Retry-After"))
		require.JSONEq(t, `{"success":false,"cause":"upstream busy"}`, w.Body.String())
		require.Equal(t, int64(1), fetcher.calls.Load())

		// The first image is still served from the cache
		w = httptest.NewRecorder()
		handler(w, newImageRequest("https://images.example.com/first.png"))
		require.Equal(t, http.StatusOK, w.Code)
	})
}
