package ports

import (
	"net/http"

	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/ratelimiting"
)

// Seconds a throttled client is asked to wait. Buckets refill several tokens per second.
const retryAfterSeconds = "1"

// NewRateLimitMiddleware rejects requests once the bucket for their key is empty.
// Rejected requests get a 429 with the usual error body and never reach next.
func NewRateLimitMiddleware(rateLimiter ratelimiting.RequestRateLimiter) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if rateLimiter.Consume(r) {
				next(w, r)
				return
			}

			ctx := r.Context()
			logging.FromContext(ctx).InfoContext(ctx, "Rate limit exceeded", "key", rateLimiter.KeyFor(r))
			w.Header().Set("Retry-After", retryAfterSeconds)
			writeErrorResponse(ctx, w, http.StatusTooManyRequests, "rate limit exceeded")
		}
	}
}

// ComposeMiddlewares applies the middlewares outermost first
func ComposeMiddlewares(middlewares ...func(http.HandlerFunc) http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(handler http.HandlerFunc) http.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}
