package reporting

import (
	"context"
	"maps"
	"time"

	"github.com/openmarket/imageloader/internal/domain"
)

type reportingMetaContextKey struct{}

// ReportingMeta is attached to every Sentry event reported with the context
type ReportingMeta struct {
	tags      map[string]string
	extras    map[string]string
	locator   string
	startedAt time.Time
}

func MetaFromContext(ctx context.Context) ReportingMeta {
	meta, _ := ctx.Value(reportingMetaContextKey{}).(ReportingMeta)
	return ReportingMeta{
		tags:      cloneOrEmpty(meta.tags),
		extras:    cloneOrEmpty(meta.extras),
		locator:   meta.locator,
		startedAt: meta.startedAt,
	}
}

func cloneOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return maps.Clone(m)
}

// Copy the meta in ctx, apply update to the copy and attach it to a child context
func updateMeta(ctx context.Context, update func(meta *ReportingMeta)) context.Context {
	meta := MetaFromContext(ctx)
	update(&meta)
	return context.WithValue(ctx, reportingMetaContextKey{}, meta)
}

func setStartedAtInContext(ctx context.Context, startedAt time.Time) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		meta.startedAt = startedAt
	})
}

func AddExtrasToContext(ctx context.Context, extras map[string]string) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.extras, extras)
	})
}

func AddTagsToContext(ctx context.Context, tags map[string]string) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.tags, tags)
	})
}

// AddLocatorToContext sets the locator being loaded. Reports carry it as an
// extra, and its host as the upstreamHost tag so failures group per upstream.
func AddLocatorToContext(ctx context.Context, locator string) context.Context {
	if MetaFromContext(ctx).locator == locator {
		return ctx
	}
	return updateMeta(ctx, func(meta *ReportingMeta) {
		meta.locator = locator
	})
}

// Tags and extras for a report, including those derived from the locator
func (m ReportingMeta) scopeValues() (map[string]string, map[string]string) {
	tags := maps.Clone(m.tags)
	extras := maps.Clone(m.extras)
	if m.locator != "" {
		extras["locator"] = m.locator
		tags["upstreamHost"] = locatorHost(m.locator)
	}
	return tags, extras
}

func locatorHost(locator string) string {
	if host, ok := domain.LocatorHost(locator); ok {
		return host
	}
	return "<invalid>"
}
