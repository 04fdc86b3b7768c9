package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/openmarket/imageloader/internal/domain"
)

type loggerContextKey struct{}

type locatorContextKey struct{}

// FromContext returns the logger attached to ctx
//
// Outside of request handling there may be none, in which case log lines go to
// stdout marked as coming from the fallback logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("logger", "fallback"))
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

func AddMetaToContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return AddToContext(ctx, FromContext(ctx).With(args...))
}

// AddLocatorToContext attaches the locator being loaded and its upstream host
// to every following log line. Adding the locator already attached is a no-op.
func AddLocatorToContext(ctx context.Context, locator string) context.Context {
	if current, ok := LocatorFromContext(ctx); ok && current == locator {
		return ctx
	}

	ctx = context.WithValue(ctx, locatorContextKey{}, locator)
	return AddMetaToContext(
		ctx,
		slog.String("locator", locator),
		slog.String("upstreamHost", upstreamHost(locator)),
	)
}

func LocatorFromContext(ctx context.Context) (string, bool) {
	locator, ok := ctx.Value(locatorContextKey{}).(string)
	return locator, ok
}

func upstreamHost(locator string) string {
	host, ok := domain.LocatorHost(locator)
	if !ok {
		return "<invalid>"
	}
	return host
}
