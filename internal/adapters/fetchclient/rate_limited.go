package fetchclient

import (
	"context"
	"fmt"

	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/ratelimiting"
)

type rateLimitedFetcher struct {
	fetcher app.Fetcher
	limiter ratelimiting.RateLimiter
}

// NewRateLimitedFetcher spends a token from the upstream host's bucket for every
// request sent to it. Loads answered from the cache or coalesced onto an
// outstanding fetch never reach the fetcher, so they are not counted.
func NewRateLimitedFetcher(fetcher app.Fetcher, limiter ratelimiting.RateLimiter) app.Fetcher {
	return &rateLimitedFetcher{
		fetcher: fetcher,
		limiter: limiter,
	}
}

func (f *rateLimitedFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	key := ratelimiting.UpstreamHostKey(locator)
	if !f.limiter.Consume(key) {
		logging.FromContext(ctx).InfoContext(ctx, "Upstream rate limit exceeded", "key", key)
		return nil, fmt.Errorf("%w: too many requests to %s", domain.ErrRateLimited, key)
	}

	return f.fetcher.Fetch(ctx, locator)
}
