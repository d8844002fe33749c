package activity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sierge-ai/activity-engine/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// StoredActivity pairs a record with its embedding for persistence.
type StoredActivity struct {
	Activity  types.Activity
	Embedding []float32
}

// Repository is the narrow persistence contract for the activity store. One
// logical collection per base location; every call is a single round trip.
type Repository interface {
	Upsert(ctx context.Context, collection string, records []StoredActivity) error
	GetByIDs(ctx context.Context, collection string, ids []uuid.UUID) ([]types.Activity, error)
	DeleteByIDs(ctx context.Context, collection string, ids []uuid.UUID) error
	Scroll(ctx context.Context, collection string, offset *uuid.UUID, limit int) ([]types.Activity, error)
	SimilaritySearch(ctx context.Context, collection string, queryEmbedding []float32, limit int, geo *types.GeoFilter) ([]types.Activity, error)
	Metrics(ctx context.Context, collection string) (*types.StoreMetrics, error)
	ListMissingEmbeddings(ctx context.Context, limit int) ([]MissingEmbedding, error)
	UpdateEmbedding(ctx context.Context, collection string, id uuid.UUID, embedding []float32) error
}

// MissingEmbedding identifies a stored record that has no vector yet,
// consumed by the backfill tool.
type MissingEmbedding struct {
	Collection string
	Activity   types.Activity
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool PgxPool
}

// PgxPool is the pool surface used by the repository, satisfied by
// *pgxpool.Pool and pgxmock.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewRepository(pgpool PgxPool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

const activityColumns = `
        id, name, category, location, full_address,
        ST_Y(coordinates::geometry) AS lat, ST_X(coordinates::geometry) AS lon,
        description, website, start_time, end_time, hours_of_operation,
        cost, booking_info, family_friendliness, accessibility_features,
        age_restrictions, indoor_outdoor, recommended_attire_or_equipment,
        weather_considerations, data_source, created_at, updated_at`

const upsertQuery = `
        INSERT INTO activities (
            id, collection, name, category, location, full_address,
            coordinates,
            description, website, start_time, end_time, hours_of_operation,
            cost, booking_info, family_friendliness, accessibility_features,
            age_restrictions, indoor_outdoor, recommended_attire_or_equipment,
            weather_considerations, data_source, embedding, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            CASE WHEN $7::float8 IS NULL THEN NULL
                 ELSE ST_SetSRID(ST_MakePoint($8::float8, $7::float8), 4326)::geography END,
            $9, $10, $11, $12, $13,
            $14, $15, $16, $17,
            $18, $19, $20,
            $21, $22, $23, $24, $25
        )
        ON CONFLICT (collection, id) DO UPDATE SET
            name = EXCLUDED.name,
            category = EXCLUDED.category,
            location = EXCLUDED.location,
            full_address = EXCLUDED.full_address,
            coordinates = EXCLUDED.coordinates,
            description = EXCLUDED.description,
            website = EXCLUDED.website,
            start_time = EXCLUDED.start_time,
            end_time = EXCLUDED.end_time,
            hours_of_operation = EXCLUDED.hours_of_operation,
            cost = EXCLUDED.cost,
            booking_info = EXCLUDED.booking_info,
            family_friendliness = EXCLUDED.family_friendliness,
            accessibility_features = EXCLUDED.accessibility_features,
            age_restrictions = EXCLUDED.age_restrictions,
            indoor_outdoor = EXCLUDED.indoor_outdoor,
            recommended_attire_or_equipment = EXCLUDED.recommended_attire_or_equipment,
            weather_considerations = EXCLUDED.weather_considerations,
            data_source = EXCLUDED.data_source,
            embedding = EXCLUDED.embedding,
            updated_at = EXCLUDED.updated_at`

// Upsert writes the batch in a single transaction. created_at of an existing
// row is never touched; everything else follows the incoming record.
func (r *RepositoryImpl) Upsert(ctx context.Context, collection string, records []StoredActivity) error {
	ctx, span := otel.Tracer("Repository").Start(ctx, "Upsert", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("batch.size", len(records)),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Upsert"), slog.String("collection", collection))

	if len(records) == 0 {
		return nil
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start transaction")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		a := record.Activity

		var lat, lon *float64
		if a.Coordinates != nil {
			lat, lon = &a.Coordinates.Lat, &a.Coordinates.Lon
		}

		var emb any
		if len(record.Embedding) > 0 {
			emb = pgvector.NewVector(record.Embedding)
		}

		features := a.AccessibilityFeatures
		if features == nil {
			features = []string{}
		}

		_, err = tx.Exec(ctx, upsertQuery,
			a.ID, collection, a.Name, string(a.Category), a.Location, a.FullAddress,
			lat, lon,
			a.Description, a.Website, a.StartTime, a.EndTime, a.HoursOfOperation,
			a.Cost, a.BookingInfo, a.FamilyFriendliness, features,
			a.AgeRestrictions, a.IndoorOutdoor, a.RecommendedAttireOrEquipment,
			a.WeatherConsiderations, a.DataSource, emb, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			l.ErrorContext(ctx, "Failed to upsert activity", slog.Any("error", err), slog.String("id", a.ID.String()))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Upsert failed")
			return fmt.Errorf("failed to upsert activity %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.InfoContext(ctx, "Activities upserted", slog.Int("count", len(records)))
	span.SetStatus(codes.Ok, "Batch upserted")
	return nil
}

// GetByIDs retrieves records by id within a collection. Missing ids are
// simply absent from the result.
func (r *RepositoryImpl) GetByIDs(ctx context.Context, collection string, ids []uuid.UUID) ([]types.Activity, error) {
	ctx, span := otel.Tracer("Repository").Start(ctx, "GetByIDs", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("ids.count", len(ids)),
	))
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query := `
        SELECT ` + activityColumns + `
        FROM activities
        WHERE collection = $1 AND id = ANY($2)
        ORDER BY id`

	rows, err := r.pgpool.Query(ctx, query, collection, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to get activities by ids: %w", err)
	}
	defer rows.Close()

	activities, err := scanActivities(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("results.count", len(activities)))
	span.SetStatus(codes.Ok, "Activities retrieved")
	return activities, nil
}

// DeleteByIDs removes records by id within a collection.
func (r *RepositoryImpl) DeleteByIDs(ctx context.Context, collection string, ids []uuid.UUID) error {
	ctx, span := otel.Tracer("Repository").Start(ctx, "DeleteByIDs", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("ids.count", len(ids)),
	))
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE collection = $1 AND id = ANY($2)`, collection, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return fmt.Errorf("failed to delete activities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Activities deleted",
		slog.String("collection", collection), slog.Int("count", len(ids)))
	span.SetStatus(codes.Ok, "Activities deleted")
	return nil
}

// Scroll pages through a collection in stable id order. Pass the last id of
// the previous page as offset; nil starts from the beginning.
func (r *RepositoryImpl) Scroll(ctx context.Context, collection string, offset *uuid.UUID, limit int) ([]types.Activity, error) {
	ctx, span := otel.Tracer("Repository").Start(ctx, "Scroll", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	))
	defer span.End()

	query := `
        SELECT ` + activityColumns + `
        FROM activities
        WHERE collection = $1 AND ($2::uuid IS NULL OR id > $2)
        ORDER BY id
        LIMIT $3`

	rows, err := r.pgpool.Query(ctx, query, collection, offset, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to scroll activities: %w", err)
	}
	defer rows.Close()

	activities, err := scanActivities(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("results.count", len(activities)))
	span.SetStatus(codes.Ok, "Scroll page retrieved")
	return activities, nil
}

// SimilaritySearch ranks records by cosine distance to the query embedding.
// With a geo filter only candidates inside the radius participate in the
// ranking; records without coordinates never match a geo-filtered query.
func (r *RepositoryImpl) SimilaritySearch(ctx context.Context, collection string, queryEmbedding []float32, limit int, geo *types.GeoFilter) ([]types.Activity, error) {
	ctx, span := otel.Tracer("Repository").Start(ctx, "SimilaritySearch", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("embedding.dimension", len(queryEmbedding)),
		attribute.Int("limit", limit),
		attribute.Bool("geo_filter", geo != nil),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "SimilaritySearch"), slog.String("collection", collection))

	vec := pgvector.NewVector(queryEmbedding)

	var rows pgx.Rows
	var err error
	if geo == nil {
		query := `
        SELECT ` + activityColumns + `,
            1 - (embedding <=> $2) AS similarity_score
        FROM activities
        WHERE collection = $1 AND embedding IS NOT NULL
        ORDER BY embedding <=> $2
        LIMIT $3`
		rows, err = r.pgpool.Query(ctx, query, collection, vec, limit)
	} else {
		query := `
        SELECT ` + activityColumns + `,
            1 - (embedding <=> $2) AS similarity_score
        FROM activities
        WHERE collection = $1 AND embedding IS NOT NULL
            AND coordinates IS NOT NULL
            AND ST_DWithin(coordinates, ST_SetSRID(ST_MakePoint($5, $4), 4326)::geography, $6)
        ORDER BY embedding <=> $2
        LIMIT $3`
		rows, err = r.pgpool.Query(ctx, query, collection, vec, limit, geo.Lat, geo.Lon, geo.RadiusMeters)
	}
	if err != nil {
		l.ErrorContext(ctx, "Failed to query similar activities", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to search similar activities: %w", err)
	}
	defer rows.Close()

	var activities []types.Activity
	for rows.Next() {
		activity, score, err := scanActivityWithScore(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan similar activity row: %w", err)
		}
		activity.SimilarityScore = score
		activities = append(activities, activity)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating similar activity rows: %w", err)
	}

	l.InfoContext(ctx, "Similar activities found", slog.Int("count", len(activities)))
	span.SetAttributes(attribute.Int("results.count", len(activities)))
	span.SetStatus(codes.Ok, "Similar activities found")
	return activities, nil
}

// Metrics returns the operational stats for a collection.
func (r *RepositoryImpl) Metrics(ctx context.Context, collection string) (*types.StoreMetrics, error) {
	ctx, span := otel.Tracer("Repository").Start(ctx, "Metrics", trace.WithAttributes(
		attribute.String("collection", collection),
	))
	defer span.End()

	query := `
        SELECT count(*), count(coordinates), count(embedding)
        FROM activities
        WHERE collection = $1`

	m := &types.StoreMetrics{Collection: collection}
	if err := r.pgpool.QueryRow(ctx, query, collection).Scan(&m.RecordCount, &m.WithCoordinates, &m.WithEmbedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to read store metrics: %w", err)
	}

	span.SetStatus(codes.Ok, "Metrics retrieved")
	return m, nil
}

// ListMissingEmbeddings returns records across all collections that were
// persisted without a vector, oldest first.
func (r *RepositoryImpl) ListMissingEmbeddings(ctx context.Context, limit int) ([]MissingEmbedding, error) {
	ctx, span := otel.Tracer("Repository").Start(ctx, "ListMissingEmbeddings", trace.WithAttributes(
		attribute.Int("limit", limit),
	))
	defer span.End()

	query := `
        SELECT collection, ` + activityColumns + `
        FROM activities
        WHERE embedding IS NULL
        ORDER BY updated_at
        LIMIT $1`

	rows, err := r.pgpool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to list activities missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []MissingEmbedding
	for rows.Next() {
		var m MissingEmbedding
		var category string
		var lat, lon *float64
		a := &m.Activity
		err := rows.Scan(
			&m.Collection,
			&a.ID, &a.Name, &category, &a.Location, &a.FullAddress,
			&lat, &lon,
			&a.Description, &a.Website, &a.StartTime, &a.EndTime, &a.HoursOfOperation,
			&a.Cost, &a.BookingInfo, &a.FamilyFriendliness, &a.AccessibilityFeatures,
			&a.AgeRestrictions, &a.IndoorOutdoor, &a.RecommendedAttireOrEquipment,
			&a.WeatherConsiderations, &a.DataSource, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		a.Category = types.Category(category)
		if lat != nil && lon != nil {
			a.Coordinates = &types.Coordinates{Lat: *lat, Lon: *lon}
		}
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	span.SetAttributes(attribute.Int("results.count", len(out)))
	span.SetStatus(codes.Ok, "Missing embeddings listed")
	return out, nil
}

// UpdateEmbedding writes the vector for a single record without touching any
// other field.
func (r *RepositoryImpl) UpdateEmbedding(ctx context.Context, collection string, id uuid.UUID, embedding []float32) error {
	ctx, span := otel.Tracer("Repository").Start(ctx, "UpdateEmbedding", trace.WithAttributes(
		attribute.String("collection", collection),
	))
	defer span.End()

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE activities SET embedding = $1 WHERE collection = $2 AND id = $3`
	if _, err := tx.Exec(ctx, query, pgvector.NewVector(embedding), collection, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Update failed")
		return fmt.Errorf("failed to update embedding for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "Embedding updated")
	return nil
}

func scanActivities(rows pgx.Rows) ([]types.Activity, error) {
	var activities []types.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return activities, nil
}

func scanActivity(rows pgx.Rows) (types.Activity, error) {
	var a types.Activity
	var category string
	var lat, lon *float64

	err := rows.Scan(
		&a.ID, &a.Name, &category, &a.Location, &a.FullAddress,
		&lat, &lon,
		&a.Description, &a.Website, &a.StartTime, &a.EndTime, &a.HoursOfOperation,
		&a.Cost, &a.BookingInfo, &a.FamilyFriendliness, &a.AccessibilityFeatures,
		&a.AgeRestrictions, &a.IndoorOutdoor, &a.RecommendedAttireOrEquipment,
		&a.WeatherConsiderations, &a.DataSource, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return a, err
	}

	a.Category = types.Category(category)
	if lat != nil && lon != nil {
		a.Coordinates = &types.Coordinates{Lat: *lat, Lon: *lon}
	}
	return a, nil
}

func scanActivityWithScore(rows pgx.Rows) (types.Activity, float64, error) {
	var a types.Activity
	var category string
	var lat, lon *float64
	var score float64

	err := rows.Scan(
		&a.ID, &a.Name, &category, &a.Location, &a.FullAddress,
		&lat, &lon,
		&a.Description, &a.Website, &a.StartTime, &a.EndTime, &a.HoursOfOperation,
		&a.Cost, &a.BookingInfo, &a.FamilyFriendliness, &a.AccessibilityFeatures,
		&a.AgeRestrictions, &a.IndoorOutdoor, &a.RecommendedAttireOrEquipment,
		&a.WeatherConsiderations, &a.DataSource, &a.CreatedAt, &a.UpdatedAt,
		&score,
	)
	if err != nil {
		return a, 0, err
	}

	a.Category = types.Category(category)
	if lat != nil && lon != nil {
		a.Coordinates = &types.Coordinates{Lat: *lat, Lon: *lon}
	}
	return a, score, nil
}
