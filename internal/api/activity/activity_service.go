package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sierge-ai/activity-engine/app/observability/metrics"
	"github.com/sierge-ai/activity-engine/internal/api/embedding"
	"github.com/sierge-ai/activity-engine/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service is the business contract for the activity store: reconciliation
// and persistence of normalized records plus the read-side query surface.
type Service interface {
	Save(ctx context.Context, pctx types.PipelineContext, activities []types.Activity) (*types.SaveResult, error)
	Query(ctx context.Context, pctx types.PipelineContext, query string, limit int, geo *types.GeoFilter) ([]types.Activity, error)
	Get(ctx context.Context, pctx types.PipelineContext, ids []uuid.UUID) ([]types.Activity, error)
	Delete(ctx context.Context, pctx types.PipelineContext, ids []uuid.UUID) error
	Scroll(ctx context.Context, pctx types.PipelineContext, offset *uuid.UUID, limit int) ([]types.Activity, error)
	Metrics(ctx context.Context, pctx types.PipelineContext) (*types.StoreMetrics, error)
}

// ServiceImpl reconciles incoming records against the store before writing.
// Reconciliation for a given identity key is serialized process-wide so two
// concurrent saves of the same place cannot both decide "new" and race.
type ServiceImpl struct {
	logger   *slog.Logger
	repo     Repository
	embedder embedding.Embedder

	// Striped locks keep the set bounded for the process lifetime.
	// Identity keys are UUIDs, so any byte indexes the stripes evenly.
	locks [64]sync.Mutex
}

// ErrMissingBaseLocation is returned when neither the request nor the
// configured defaults name a base location, so no collection can be derived.
var ErrMissingBaseLocation = errors.New("base location is required to name the store collection")

func NewService(repo Repository, embedder embedding.Embedder, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		embedder: embedder,
	}
}

func (s *ServiceImpl) keyLock(key uuid.UUID) *sync.Mutex {
	return &s.locks[int(key[0])&(len(s.locks)-1)]
}

// Save reconciles each record against the store, embeds it and writes the
// whole batch in one transaction. Any failure along the way fails the call:
// a store that cannot answer must never cause silent duplicate inserts.
func (s *ServiceImpl) Save(ctx context.Context, pctx types.PipelineContext, activities []types.Activity) (*types.SaveResult, error) {
	collection := pctx.Collection()
	ctx, span := otel.Tracer("ActivityService").Start(ctx, "Save", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("batch.size", len(activities)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Save"), slog.String("collection", collection))

	if len(activities) == 0 {
		return &types.SaveResult{Status: "saved", RecordsAffected: 0}, nil
	}
	if collection == "" {
		span.RecordError(ErrMissingBaseLocation)
		span.SetStatus(codes.Error, "Missing base location")
		return nil, ErrMissingBaseLocation
	}

	now := time.Now().Unix()
	deduped := 0
	reconciled := make([]types.Activity, 0, len(activities))
	slot := make(map[uuid.UUID]int, len(activities))

	for i := range activities {
		a := activities[i]
		a.Category = types.ParseCategory(string(a.Category))

		// A repeat sighting inside the same batch merges against the
		// in-flight record, not the store, so its empty fields cannot
		// clobber values an earlier record in the batch already carries.
		if key, ok := a.IdentityKey(); ok {
			if idx, dup := slot[key]; dup {
				prior := reconciled[idx]
				a.ID = prior.ID
				a.CreatedAt = prior.CreatedAt
				a.UpdatedAt = now
				a.MergeFrom(&prior)
				reconciled[idx] = a
				deduped++
				continue
			}
		}

		merged, err := s.reconcile(ctx, collection, &a, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Reconciliation failed")
			return nil, err
		}
		if merged {
			deduped++
		}

		if key, ok := a.IdentityKey(); ok {
			slot[key] = len(reconciled)
		}
		reconciled = append(reconciled, a)
	}

	records := make([]StoredActivity, 0, len(reconciled))
	sources := make(map[string]struct{})
	ids := make([]string, 0, len(reconciled))

	for i := range reconciled {
		a := reconciled[i]

		vec, err := s.embedder.Embed(ctx, a.EmbeddingText())
		if err != nil {
			l.ErrorContext(ctx, "Failed to embed activity", slog.Any("error", err), slog.String("name", a.Name))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Embedding failed")
			return nil, fmt.Errorf("failed to embed activity %q: %w", a.Name, err)
		}

		if a.DataSource != "" {
			sources[a.DataSource] = struct{}{}
		}
		ids = append(ids, a.ID.String())
		records = append(records, StoredActivity{Activity: a, Embedding: vec})
	}

	if err := s.repo.Upsert(ctx, collection, records); err != nil {
		metrics.Get().UpsertErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Upsert failed")
		return nil, fmt.Errorf("failed to save activities: %w", err)
	}

	metrics.Get().ActivitiesSavedTotal.Add(ctx, int64(len(records)))
	metrics.Get().ActivitiesDedupedTotal.Add(ctx, int64(deduped))

	l.InfoContext(ctx, "Activities saved",
		slog.Int("count", len(records)), slog.Int("deduped", deduped))
	span.SetAttributes(attribute.Int("deduped", deduped))
	span.SetStatus(codes.Ok, "Activities saved")

	return &types.SaveResult{
		Status:          "saved",
		DataSource:      joinSources(sources),
		RecordsAffected: len(records),
		AffectedIDs:     ids,
	}, nil
}

// reconcile assigns the record its identity and merges stored state into it.
// Records with a name and full address get the deterministic key; a second
// sighting of the same place therefore overwrites rather than duplicates.
// Records without an address insert as new under a random id. Returns true
// when an existing record was merged in. A store lookup failure is fatal.
func (s *ServiceImpl) reconcile(ctx context.Context, collection string, a *types.Activity, now int64) (bool, error) {
	key, ok := a.IdentityKey()
	if !ok {
		a.ID = uuid.New()
		a.CreatedAt = now
		a.UpdatedAt = now
		return false, nil
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetByIDs(ctx, collection, []uuid.UUID{key})
	if err != nil {
		return false, fmt.Errorf("failed to look up existing activity: %w", err)
	}

	a.ID = key
	a.UpdatedAt = now
	if len(existing) == 0 {
		a.CreatedAt = now
		return false, nil
	}

	prior := existing[0]
	a.CreatedAt = prior.CreatedAt
	a.MergeFrom(&prior)
	return true, nil
}

// Query embeds the text and runs a similarity search, optionally restricted
// to a geographic radius.
func (s *ServiceImpl) Query(ctx context.Context, pctx types.PipelineContext, query string, limit int, geo *types.GeoFilter) ([]types.Activity, error) {
	collection := pctx.Collection()
	ctx, span := otel.Tracer("ActivityService").Start(ctx, "Query", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("query", query),
		attribute.Int("limit", limit),
		attribute.Bool("geo_filter", geo != nil),
	))
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if limit <= 0 {
		limit = pctx.NumberOfResults
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Embedding failed")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	metrics.Get().SimilaritySearchesTotal.Add(ctx, 1)

	results, err := s.repo.SimilaritySearch(ctx, collection, vec, limit, geo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Search failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("results.count", len(results)))
	span.SetStatus(codes.Ok, "Query completed")
	return results, nil
}

func (s *ServiceImpl) Get(ctx context.Context, pctx types.PipelineContext, ids []uuid.UUID) ([]types.Activity, error) {
	return s.repo.GetByIDs(ctx, pctx.Collection(), ids)
}

func (s *ServiceImpl) Delete(ctx context.Context, pctx types.PipelineContext, ids []uuid.UUID) error {
	return s.repo.DeleteByIDs(ctx, pctx.Collection(), ids)
}

func (s *ServiceImpl) Scroll(ctx context.Context, pctx types.PipelineContext, offset *uuid.UUID, limit int) ([]types.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.Scroll(ctx, pctx.Collection(), offset, limit)
}

func (s *ServiceImpl) Metrics(ctx context.Context, pctx types.PipelineContext) (*types.StoreMetrics, error) {
	return s.repo.Metrics(ctx, pctx.Collection())
}

func joinSources(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
