package ratelimiting

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/openmarket/imageloader/internal/domain"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Consume(key string) bool
}

// Buckets for keys that have been idle this long are dropped
const idleBucketTTL = 30 * time.Minute

type tokenBucketRateLimiter struct {
	bucketByKey     *ttlcache.Cache[string, *rate.Limiter]
	refillPerSecond float64
	burstSize       int
}

func (rateLimiter *tokenBucketRateLimiter) Consume(key string) bool {
	bucket, _ := rateLimiter.bucketByKey.GetOrSet(key, rate.NewLimiter(rate.Limit(rateLimiter.refillPerSecond), rateLimiter.burstSize))
	return bucket.Value().Allow()
}

type RefillPerSecond float64
type BurstSize int

func NewTokenBucketRateLimiter(refillPerSecond RefillPerSecond, burstSize BurstSize) (RateLimiter, func()) {
	bucketCache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](idleBucketTTL),
	)
	go bucketCache.Start()

	return &tokenBucketRateLimiter{
		bucketByKey:     bucketCache,
		refillPerSecond: float64(refillPerSecond),
		burstSize:       int(burstSize),
	}, bucketCache.Stop
}

type RequestRateLimiter interface {
	Consume(r *http.Request) bool
	KeyFor(r *http.Request) string
}

type requestBasedRateLimiter struct {
	limiter RateLimiter
	keyFunc func(r *http.Request) string
}

func (rateLimiter *requestBasedRateLimiter) Consume(r *http.Request) bool {
	return rateLimiter.limiter.Consume(rateLimiter.keyFunc(r))
}

func (rateLimiter *requestBasedRateLimiter) KeyFor(r *http.Request) string {
	return rateLimiter.keyFunc(r)
}

func NewRequestBasedRateLimiter(limiter RateLimiter, keyFunc func(r *http.Request) string) RequestRateLimiter {
	return &requestBasedRateLimiter{
		limiter: limiter,
		keyFunc: keyFunc,
	}
}

// IPKeyFunc keys on the client ip
//
// The load balancer appends the address it received the request from to
// X-Forwarded-For, so the second to last entry is the client. Entries before
// it are supplied by the client and are ignored.
func IPKeyFunc(r *http.Request) string {
	if entries := strings.Split(r.Header.Get("X-Forwarded-For"), ","); len(entries) >= 2 {
		if client := strings.TrimSpace(entries[len(entries)-2]); client != "" {
			return fmt.Sprintf("ip: %s", client)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// No port
		host = r.RemoteAddr
	}

	return fmt.Sprintf("ip: %s", host)
}

// UpstreamHostKey keys on the host of the image url
func UpstreamHostKey(locator string) string {
	host, ok := domain.LocatorHost(locator)
	if !ok {
		host = "<invalid>"
	}
	return fmt.Sprintf("upstream: %.100s", host)
}
