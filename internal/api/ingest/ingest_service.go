package ingest

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sierge-ai/activity-engine/internal/api/activity"
	"github.com/sierge-ai/activity-engine/internal/api/geocoding"
	"github.com/sierge-ai/activity-engine/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service runs the collection pipeline: provider batches in, reconciled and
// persisted activities out.
type Service interface {
	Ingest(ctx context.Context, pctx types.PipelineContext, batches []types.RawProviderBatch) (*types.SaveResult, error)
}

// ServiceImpl normalizes raw provider results, resolves addresses
// concurrently and hands the batch to the activity service for
// reconciliation and persistence.
type ServiceImpl struct {
	logger         *slog.Logger
	resolver       *geocoding.Resolver
	activities     activity.Service
	resolveWorkers int
}

func NewService(resolver *geocoding.Resolver, activities activity.Service, resolveWorkers int, logger *slog.Logger) *ServiceImpl {
	if resolveWorkers <= 0 {
		resolveWorkers = 4
	}
	return &ServiceImpl{
		logger:         logger,
		resolver:       resolver,
		activities:     activities,
		resolveWorkers: resolveWorkers,
	}
}

// Ingest runs normalize → resolve → save. Address resolution fans out over a
// bounded worker pool sized to the geocoding API's rate limit; resolution
// failures leave the record without coordinates but never fail the batch.
// Only the final save can fail.
func (s *ServiceImpl) Ingest(ctx context.Context, pctx types.PipelineContext, batches []types.RawProviderBatch) (*types.SaveResult, error) {
	ctx, span := otel.Tracer("IngestService").Start(ctx, "Ingest", trace.WithAttributes(
		attribute.String("base_location", pctx.BaseLocation),
		attribute.Int("batches", len(batches)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Ingest"), slog.String("base_location", pctx.BaseLocation))

	var activities []types.Activity
	for _, batch := range batches {
		activities = append(activities, NormalizeBatch(batch)...)
	}
	if len(activities) == 0 {
		l.InfoContext(ctx, "Nothing to ingest after normalization")
		span.SetStatus(codes.Ok, "Empty batch")
		return &types.SaveResult{Status: "saved", RecordsAffected: 0}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.resolveWorkers)
	for i := range activities {
		a := &activities[i]
		if a.FullAddress != "" {
			continue
		}
		g.Go(func() error {
			resolved := s.resolver.Resolve(gctx, a.Name, a.Location, pctx.BaseLocation, pctx.BiasLat, pctx.BiasLon)
			if resolved != nil {
				a.FullAddress = resolved.FormattedAddress
				a.Coordinates = &types.Coordinates{Lat: resolved.Latitude, Lon: resolved.Longitude}
			}
			return nil
		})
	}
	// Workers never return errors; Wait is a join point only.
	_ = g.Wait()

	result, err := s.activities.Save(ctx, pctx, activities)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Save failed")
		return nil, err
	}

	l.InfoContext(ctx, "Batch ingested",
		slog.Int("normalized", len(activities)),
		slog.Int("saved", result.RecordsAffected))
	span.SetAttributes(attribute.Int("saved", result.RecordsAffected))
	span.SetStatus(codes.Ok, "Batch ingested")
	return result, nil
}
