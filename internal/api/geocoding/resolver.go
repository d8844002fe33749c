package geocoding

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sierge-ai/activity-engine/app/observability/metrics"
)

// ResolvedAddress is the outcome of a successful resolution chain.
type ResolvedAddress struct {
	FormattedAddress string  `json:"formatted_address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

// Resolver turns a free-text activity name and location into a validated
// postal address, trying validation first and place search as fallback.
// All failures, including upstream API errors, degrade to nil.
type Resolver struct {
	client      Client
	cache       *cache.Cache
	biasRadiusM float64
	logger      *slog.Logger
}

func NewResolver(client Client, biasRadiusM float64, cacheTTL, cacheCleanup time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:      client,
		cache:       cache.New(cacheTTL, cacheCleanup),
		biasRadiusM: biasRadiusM,
		logger:      logger,
	}
}

// Resolve runs the priority chain:
//
//  1. Validate the raw location string, scoped to the base locality. A match
//     at premise granularity or finer wins outright.
//  2. Otherwise search places with "name, location" (just the name when the
//     location is empty), biased toward the session's point.
//  3. Re-validate the place-search address. A validated address beats the
//     place-search one even when it belongs to a different named entity:
//     place search falls back to approximate matches for unresolvable names,
//     so address correctness takes priority over place-name correctness.
//
// Returns nil when every strategy fails.
func (r *Resolver) Resolve(ctx context.Context, name, location, locality string, biasLat, biasLon float64) *ResolvedAddress {
	ctx, span := otel.Tracer("Geocoding").Start(ctx, "Resolve", trace.WithAttributes(
		attribute.String("activity.name", name),
		attribute.String("activity.location", location),
		attribute.String("locality", locality),
	))
	defer span.End()

	cacheKey := name + "|" + location + "|" + locality
	if cached, found := r.cache.Get(cacheKey); found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Resolved from cache")
		return cached.(*ResolvedAddress)
	}

	start := time.Now()
	resolved := r.resolve(ctx, name, location, locality, biasLat, biasLon)
	metrics.Get().ResolutionDurationSeconds.Record(ctx, time.Since(start).Seconds())

	if resolved == nil {
		metrics.Get().ResolutionFailuresTotal.Add(ctx, 1)
		span.SetStatus(codes.Ok, "Resolution failed")
		return nil
	}

	r.cache.Set(cacheKey, resolved, cache.DefaultExpiration)
	span.SetAttributes(attribute.String("resolved.address", resolved.FormattedAddress))
	span.SetStatus(codes.Ok, "Resolved")
	return resolved
}

func (r *Resolver) resolve(ctx context.Context, name, location, locality string, biasLat, biasLon float64) *ResolvedAddress {
	l := r.logger.With(slog.String("method", "Resolve"), slog.String("name", name), slog.String("location", location))

	if location != "" {
		validated, err := r.client.ValidateAddress(ctx, location, locality)
		if err != nil {
			l.ErrorContext(ctx, "Address validation failed, continuing with place search", slog.Any("error", err))
		}
		if validated != nil {
			return fromPlace(validated)
		}
	}

	query := name
	if location != "" {
		query = name + ", " + location
	}
	place, err := r.client.SearchPlace(ctx, query, biasLat, biasLon, r.biasRadiusM)
	if err != nil {
		l.ErrorContext(ctx, "Place search failed", slog.Any("error", err))
		return nil
	}
	if place == nil {
		l.DebugContext(ctx, "No place found for query", slog.String("query", query))
		return nil
	}

	// Prefer the validated form of the searched address when it passes.
	revalidated, err := r.client.ValidateAddress(ctx, place.FormattedAddress, locality)
	if err != nil {
		l.ErrorContext(ctx, "Re-validation of place address failed, keeping place result", slog.Any("error", err))
	}
	if revalidated != nil {
		return fromPlace(revalidated)
	}
	return fromPlace(place)
}

func fromPlace(p *PlaceAddress) *ResolvedAddress {
	return &ResolvedAddress{
		FormattedAddress: p.FormattedAddress,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
	}
}
