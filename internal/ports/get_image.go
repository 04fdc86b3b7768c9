package ports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/ratelimiting"
	"github.com/openmarket/imageloader/internal/reporting"
)

const maxLocatorLength = 2048

var cacheControl = fmt.Sprintf("public, max-age=%d", int(cache.TTL.Seconds()))

// MakeGetImageHandler serves the image at the url query parameter. Requests are
// throttled per client ip. Throttling per upstream host happens in the fetcher,
// so cached images are always served.
func MakeGetImageHandler(
	loadImage app.LoadImage,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		buildMetricsMiddleware(),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		locator := r.URL.Query().Get("url")

		if locator == "" {
			writeErrorResponse(ctx, w, http.StatusBadRequest, "missing url")
			return
		}
		if len(locator) > maxLocatorLength {
			writeErrorResponse(ctx, w, http.StatusBadRequest, "url too long")
			return
		}

		ctx = logging.AddLocatorToContext(ctx, locator)
		ctx = reporting.AddLocatorToContext(ctx, locator)

		img, err := loadImage(ctx, locator)
		if err != nil {
			writeLoadErrorResponse(ctx, w, err)
			return
		}

		ctx = logging.AddMetaToContext(ctx,
			slog.String("format", img.Format),
			slog.Int("width", img.Width),
			slog.Int("height", img.Height),
		)
		logging.FromContext(ctx).InfoContext(ctx, "Returning image", "bytes", len(img.Data))

		writeImageResponse(w, img)
	}

	return middleware(handler)
}

func writeImageResponse(w http.ResponseWriter, img domain.Image) {
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
