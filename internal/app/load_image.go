package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/domain"
)

type LoadImage func(ctx context.Context, locator string) (domain.Image, error)

func NewImageLoader(imageCache cache.Cache[domain.Image], fetcher Fetcher, nowFunc func() time.Time) *Loader[domain.Image] {
	return NewLoader(imageCache, fetcher, domain.DecodeImage, nowFunc)
}

func hostIsAllowed(host string, allowedHosts []string) bool {
	host = strings.ToLower(host)
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// BuildLoadImage restricts loads to locators on the allowed hosts (or their subdomains).
// An empty allow list allows any host.
func BuildLoadImage(loader *Loader[domain.Image], allowedHosts []string) LoadImage {
	return func(ctx context.Context, locator string) (domain.Image, error) {
		if len(allowedHosts) > 0 {
			parsed, err := url.Parse(locator)
			if err != nil {
				return domain.Image{}, fmt.Errorf("%w: could not parse locator: %w", domain.ErrInvalidRequest, err)
			}
			if !hostIsAllowed(parsed.Hostname(), allowedHosts) {
				return domain.Image{}, fmt.Errorf("%w: host '%s' is not allowed", domain.ErrInvalidRequest, parsed.Hostname())
			}
		}

		return loader.Load(ctx, locator)
	}
}
