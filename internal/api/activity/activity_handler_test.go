package activity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sierge-ai/activity-engine/internal/types"
)

// MockService is a mock implementation of the Service interface.
type MockService struct {
	mock.Mock
}

func (m *MockService) Save(ctx context.Context, pctx types.PipelineContext, activities []types.Activity) (*types.SaveResult, error) {
	args := m.Called(ctx, pctx, activities)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SaveResult), args.Error(1)
}

func (m *MockService) Query(ctx context.Context, pctx types.PipelineContext, query string, limit int, geo *types.GeoFilter) ([]types.Activity, error) {
	args := m.Called(ctx, pctx, query, limit, geo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Activity), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, pctx types.PipelineContext, ids []uuid.UUID) ([]types.Activity, error) {
	args := m.Called(ctx, pctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Activity), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, pctx types.PipelineContext, ids []uuid.UUID) error {
	args := m.Called(ctx, pctx, ids)
	return args.Error(0)
}

func (m *MockService) Scroll(ctx context.Context, pctx types.PipelineContext, offset *uuid.UUID, limit int) ([]types.Activity, error) {
	args := m.Called(ctx, pctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Activity), args.Error(1)
}

func (m *MockService) Metrics(ctx context.Context, pctx types.PipelineContext) (*types.StoreMetrics, error) {
	args := m.Called(ctx, pctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.StoreMetrics), args.Error(1)
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestSaveActivitiesHandler(t *testing.T) {
	t.Run("unknown fields on records are dropped, not rejected", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Save", mock.Anything, mock.Anything, mock.MatchedBy(func(activities []types.Activity) bool {
			return len(activities) == 1 && activities[0].Name == "Cafe X"
		})).Return(&types.SaveResult{Status: "saved", RecordsAffected: 1}, nil)

		h := NewHandlerImpl(svc, testPctx, slog.New(slog.DiscardHandler))
		w := postJSON(t, h.SaveActivities, "/api/v1/activities/save",
			`{"activities":[{"name":"Cafe X","image_url":"https://example.com/x.jpg","rating":4.5}]}`)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		svc := new(MockService)
		h := NewHandlerImpl(svc, testPctx, slog.New(slog.DiscardHandler))
		w := postJSON(t, h.SaveActivities, "/api/v1/activities/save", `{"activities":[]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing base location is the caller's fault", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Save", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, ErrMissingBaseLocation)

		h := NewHandlerImpl(svc, types.PipelineContext{}, slog.New(slog.DiscardHandler))
		w := postJSON(t, h.SaveActivities, "/api/v1/activities/save",
			`{"activities":[{"name":"Cafe X"}]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure maps to bad gateway", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Save", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("store unavailable"))

		h := NewHandlerImpl(svc, testPctx, slog.New(slog.DiscardHandler))
		w := postJSON(t, h.SaveActivities, "/api/v1/activities/save",
			`{"activities":[{"name":"Cafe X"}]}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
