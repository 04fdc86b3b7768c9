package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/adapters/fetchclient"
	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/config"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/ports"
	"github.com/openmarket/imageloader/internal/ratelimiting"
	"github.com/openmarket/imageloader/internal/reporting"
	"github.com/openmarket/imageloader/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
)

func main() {
	instanceID := uuid.New().String()
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("instanceID", instanceID)

	fail := func(logger *slog.Logger, msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail(bootstrapLogger, "Failed to load config", "error", err.Error())
	}

	logger := slog.New(
		logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil), config.GoogleCloudProject()),
	).With("instanceID", instanceID)
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	if !config.IsDevelopment() {
		shutdown, err := telemetry.SetupOTelSDK(context.Background(), config.ServiceName())
		if err != nil {
			fail(logger, "Failed to set up OpenTelemetry", "error", err.Error())
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := shutdown(ctx)
			if err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail(logger, "Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	httpClient := fetchclient.NewHTTPClient(
		config.FetchTimeout(),
		config.FetchRetryMax(),
		logger.With("component", "httpclient"),
	)
	fetcher, err := fetchclient.NewFetchClientOrMock(config, httpClient)
	if err != nil {
		fail(logger, "Failed to initialize fetch client", "error", err.Error())
	}
	logger.Info("Initialized fetch client")

	upstreamLimiter, stopUpstreamLimiter := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(50),
		ratelimiting.BurstSize(500),
	)
	defer stopUpstreamLimiter()
	fetcher = fetchclient.NewRateLimitedFetcher(fetcher, upstreamLimiter)

	imageCache, stopCache := cache.NewTTLCache[domain.Image](time.Now)
	defer stopCache()

	imageLoader := app.NewImageLoader(imageCache, fetcher, time.Now)
	loadImage := app.BuildLoadImage(imageLoader, config.AllowedUpstreamHosts())

	allowedOrigins, err := ports.NewDomainSuffixes(config.AllowedOrigins()...)
	if err != nil {
		fail(logger, "Failed to initialize allowed origins", "error", err.Error())
	}

	ipLimiter, stopIPLimiter := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(8),
		ratelimiting.BurstSize(480),
	)
	defer stopIPLimiter()

	mux := http.NewServeMux()

	mux.HandleFunc(
		"OPTIONS /v1/image",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/image",
		ports.MakeGetImageHandler(
			loadImage,
			allowedOrigins,
			ratelimiting.NewRequestBasedRateLimiter(ipLimiter, ratelimiting.IPKeyFunc),
			logger.With("port", "image"),
			sentryMiddleware,
		),
	)

	logger.Info("Init complete")
	err = http.ListenAndServe(fmt.Sprintf(":%s", config.Port()), otelhttp.NewHandler(mux, "imageloader"))
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail(logger, "Server error", "error", err.Error())
	}
}
