package activity

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sierge-ai/activity-engine/internal/types"
)

func setupRepositoryTest(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	repo := NewRepository(mockPool, slog.New(slog.DiscardHandler))
	return repo, mockPool
}

var activityRowColumns = []string{
	"id", "name", "category", "location", "full_address",
	"lat", "lon",
	"description", "website", "start_time", "end_time", "hours_of_operation",
	"cost", "booking_info", "family_friendliness", "accessibility_features",
	"age_restrictions", "indoor_outdoor", "recommended_attire_or_equipment",
	"weather_considerations", "data_source", "created_at", "updated_at",
}

// Lat/lon scan into *float64, so rows carry pointers (or nil for rows
// without coordinates).
func activityRow(id uuid.UUID, name string, lat, lon *float64) []any {
	return []any{
		id, name, string(types.CategoryFoodDrink), "Downtown", "123 Main St, Dallas, TX",
		lat, lon,
		"A cozy cafe", "", "", "", "",
		"$", "", "", []string{},
		"", "", "",
		"", "yelp_search", int64(1000), int64(2000),
	}
}

func coord(v float64) *float64 {
	return &v
}

// anyArgs builds a full AnyArg list for statements where the individual
// bindings are not what the test is about.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestRepositoryUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the batch in one transaction", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		records := []StoredActivity{
			{Activity: types.Activity{ID: uuid.New(), Name: "Cafe X"}, Embedding: []float32{0.1, 0.2}},
			{Activity: types.Activity{ID: uuid.New(), Name: "Cafe Y", Coordinates: &types.Coordinates{Lat: 32.77, Lon: -96.79}}},
		}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`ON CONFLICT \(collection, id\)`).
			WithArgs(anyArgs(25)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(`ON CONFLICT \(collection, id\)`).
			WithArgs(anyArgs(25)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		err := repo.Upsert(ctx, "dallas_texas_united_states", records)
		require.NoError(t, err)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rows are scoped to their collection", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		// The same place saved under two base locations keeps both rows:
		// the conflict target includes the collection, so an upsert into
		// one collection can never rewrite the other's row.
		id := uuid.New()
		records := []StoredActivity{{Activity: types.Activity{ID: id, Name: "Cafe X"}}}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`ON CONFLICT \(collection, id\)`).
			WithArgs(append([]any{id, "dallas_texas_united_states"}, anyArgs(23)...)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		require.NoError(t, repo.Upsert(ctx, "dallas_texas_united_states", records))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`ON CONFLICT \(collection, id\)`).
			WithArgs(append([]any{id, "austin_texas_united_states"}, anyArgs(23)...)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		require.NoError(t, repo.Upsert(ctx, "austin_texas_united_states", records))

		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("a rejected row aborts the whole batch", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		records := []StoredActivity{
			{Activity: types.Activity{ID: uuid.New(), Name: "Cafe X"}},
			{Activity: types.Activity{ID: uuid.New(), Name: "Cafe Y"}},
		}

		mockPool.ExpectBegin()
		mockPool.ExpectExec("INSERT INTO activities").
			WithArgs(anyArgs(25)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("INSERT INTO activities").
			WithArgs(anyArgs(25)...).
			WillReturnError(errors.New("constraint violation"))
		mockPool.ExpectRollback()

		err := repo.Upsert(ctx, "dallas_texas_united_states", records)
		require.Error(t, err)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty batch never touches the store", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		require.NoError(t, repo.Upsert(ctx, "dallas_texas_united_states", nil))
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepositoryGetByIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("maps rows including nullable coordinates", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		withCoords := uuid.New()
		withoutCoords := uuid.New()
		rows := pgxmock.NewRows(activityRowColumns).
			AddRow(activityRow(withCoords, "Cafe X", coord(32.77), coord(-96.79))...).
			AddRow(activityRow(withoutCoords, "Cafe Y", nil, nil)...)

		mockPool.ExpectQuery("FROM activities").
			WithArgs("dallas_texas_united_states", []uuid.UUID{withCoords, withoutCoords}).
			WillReturnRows(rows)

		got, err := repo.GetByIDs(ctx, "dallas_texas_united_states", []uuid.UUID{withCoords, withoutCoords})
		require.NoError(t, err)
		require.Len(t, got, 2)

		require.NotNil(t, got[0].Coordinates)
		assert.InDelta(t, 32.77, got[0].Coordinates.Lat, 1e-9)
		assert.Nil(t, got[1].Coordinates)
		assert.Equal(t, types.CategoryFoodDrink, got[0].Category)
		assert.Equal(t, int64(1000), got[0].CreatedAt)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("no ids short-circuits", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		got, err := repo.GetByIDs(ctx, "dallas_texas_united_states", nil)
		require.NoError(t, err)
		assert.Nil(t, got)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepositoryDeleteByIDs(t *testing.T) {
	repo, mockPool := setupRepositoryTest(t)
	ids := []uuid.UUID{uuid.New()}

	mockPool.ExpectBegin()
	mockPool.ExpectExec("DELETE FROM activities").
		WithArgs("dallas_texas_united_states", ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mockPool.ExpectCommit()

	err := repo.DeleteByIDs(context.Background(), "dallas_texas_united_states", ids)
	require.NoError(t, err)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepositoryScroll(t *testing.T) {
	repo, mockPool := setupRepositoryTest(t)

	last := uuid.New()
	next := uuid.New()
	rows := pgxmock.NewRows(activityRowColumns).
		AddRow(activityRow(next, "Cafe X", nil, nil)...)

	mockPool.ExpectQuery("ORDER BY id").
		WithArgs("dallas_texas_united_states", &last, 50).
		WillReturnRows(rows)

	got, err := repo.Scroll(context.Background(), "dallas_texas_united_states", &last, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, next, got[0].ID)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepositorySimilaritySearch(t *testing.T) {
	ctx := context.Background()

	t.Run("plain search carries the similarity score", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		id := uuid.New()
		rows := pgxmock.NewRows(append(activityRowColumns, "similarity_score")).
			AddRow(append(activityRow(id, "Cafe X", coord(32.77), coord(-96.79)), 0.93)...)

		mockPool.ExpectQuery("ORDER BY embedding").
			WithArgs("dallas_texas_united_states", pgvector.NewVector([]float32{0.1, 0.2}), 5).
			WillReturnRows(rows)

		got, err := repo.SimilaritySearch(ctx, "dallas_texas_united_states", []float32{0.1, 0.2}, 5, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 0.93, got[0].SimilarityScore, 1e-9)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("geo filter adds the radius predicate", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		rows := pgxmock.NewRows(append(activityRowColumns, "similarity_score"))
		mockPool.ExpectQuery("ST_DWithin").
			WithArgs("dallas_texas_united_states", pgvector.NewVector([]float32{0.1}), 5, 32.77, -96.79, float64(5000)).
			WillReturnRows(rows)

		got, err := repo.SimilaritySearch(ctx, "dallas_texas_united_states", []float32{0.1}, 5,
			&types.GeoFilter{Lat: 32.77, Lon: -96.79, RadiusMeters: 5000})
		require.NoError(t, err)
		assert.Empty(t, got)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		repo, mockPool := setupRepositoryTest(t)

		mockPool.ExpectQuery("ORDER BY embedding").
			WithArgs(anyArgs(3)...).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.SimilaritySearch(ctx, "dallas_texas_united_states", []float32{0.1}, 5, nil)
		require.Error(t, err)
	})
}

func TestRepositoryMetrics(t *testing.T) {
	repo, mockPool := setupRepositoryTest(t)

	rows := pgxmock.NewRows([]string{"count", "count", "count"}).
		AddRow(int64(42), int64(30), int64(40))
	mockPool.ExpectQuery("SELECT count").
		WithArgs("dallas_texas_united_states").
		WillReturnRows(rows)

	got, err := repo.Metrics(context.Background(), "dallas_texas_united_states")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.RecordCount)
	assert.Equal(t, int64(30), got.WithCoordinates)
	assert.Equal(t, int64(40), got.WithEmbedding)
	require.NoError(t, mockPool.ExpectationsWereMet())
}
