package activity

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sierge-ai/activity-engine/internal/api"
	"github.com/sierge-ai/activity-engine/internal/types"
)

// HandlerImpl exposes the activity store over HTTP. All endpoints operate on
// the collection named by the base location, defaulting to the configured
// session context when the request does not override it.
type HandlerImpl struct {
	service  Service
	defaults types.PipelineContext
	logger   *slog.Logger
}

func NewHandlerImpl(service Service, defaults types.PipelineContext, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		service:  service,
		defaults: defaults,
		logger:   logger,
	}
}

// pipelineContext merges a request-supplied base location over the defaults.
func (h *HandlerImpl) pipelineContext(baseLocation string) types.PipelineContext {
	pctx := h.defaults
	if baseLocation != "" {
		pctx.BaseLocation = baseLocation
	}
	return pctx
}

type saveRequest struct {
	BaseLocation string           `json:"base_location,omitempty"`
	Activities   []types.Activity `json:"activities"`
}

// SaveActivities handles POST /activities/save: reconcile and persist a batch
// of normalized records.
func (h *HandlerImpl) SaveActivities(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "SaveActivities"))

	// Lenient decode: record payloads come from upstream model output and
	// may carry fields outside the schema. Those are clamped away, not
	// grounds for rejecting the batch.
	var req saveRequest
	if err := api.DecodeJSONBodyLenient(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Activities) == 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "activities must not be empty")
		return
	}

	result, err := h.service.Save(r.Context(), h.pipelineContext(req.BaseLocation), req.Activities)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to save activities", slog.Any("error", err))
		if errors.Is(err, ErrMissingBaseLocation) {
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		api.ErrorResponse(w, r, http.StatusBadGateway, "failed to save activities")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, result)
}

type queryRequest struct {
	BaseLocation string           `json:"base_location,omitempty"`
	Query        string           `json:"query"`
	Limit        int              `json:"limit,omitempty"`
	Geo          *types.GeoFilter `json:"geo,omitempty"`
}

type queryResponse struct {
	Results []types.Activity `json:"results"`
}

// QueryActivities handles POST /activities/query: semantic search with an
// optional geographic radius filter.
func (h *HandlerImpl) QueryActivities(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "QueryActivities"))

	var req queryRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "query must not be empty")
		return
	}
	if req.Geo != nil && req.Geo.RadiusMeters <= 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "geo filter radius must be positive")
		return
	}

	results, err := h.service.Query(r.Context(), h.pipelineContext(req.BaseLocation), req.Query, req.Limit, req.Geo)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to query activities", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to query activities")
		return
	}
	if results == nil {
		results = []types.Activity{}
	}

	api.WriteJSONResponse(w, r, http.StatusOK, queryResponse{Results: results})
}

// GetActivities handles GET /activities?ids=a,b,c: fetch records by id.
func (h *HandlerImpl) GetActivities(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "GetActivities"))

	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(ids) == 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	results, err := h.service.Get(r.Context(), h.pipelineContext(r.URL.Query().Get("base_location")), ids)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to get activities", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to get activities")
		return
	}
	if results == nil {
		results = []types.Activity{}
	}

	api.WriteJSONResponse(w, r, http.StatusOK, queryResponse{Results: results})
}

// DeleteActivities handles DELETE /activities?ids=a,b,c.
func (h *HandlerImpl) DeleteActivities(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "DeleteActivities"))

	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(ids) == 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	if err := h.service.Delete(r.Context(), h.pipelineContext(r.URL.Query().Get("base_location")), ids); err != nil {
		l.ErrorContext(r.Context(), "Failed to delete activities", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to delete activities")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

type scrollResponse struct {
	Results    []types.Activity `json:"results"`
	NextOffset string           `json:"next_offset,omitempty"`
}

// ScrollActivities handles GET /activities/scroll?offset=<id>&limit=n: stable
// id-ordered pagination through a collection. The returned next_offset feeds
// the next call; its absence means the scroll is exhausted.
func (h *HandlerImpl) ScrollActivities(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "ScrollActivities"))

	var offset *uuid.UUID
	if raw := r.URL.Query().Get("offset"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.ErrorResponse(w, r, http.StatusBadRequest, "invalid offset: must be a UUID")
			return
		}
		offset = &id
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			api.ErrorResponse(w, r, http.StatusBadRequest, "invalid limit: must be a positive integer")
			return
		}
		limit = n
	}

	results, err := h.service.Scroll(r.Context(), h.pipelineContext(r.URL.Query().Get("base_location")), offset, limit)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to scroll activities", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to scroll activities")
		return
	}

	resp := scrollResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []types.Activity{}
	}
	if len(results) > 0 {
		resp.NextOffset = results[len(results)-1].ID.String()
	}

	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

// StoreMetrics handles GET /activities/metrics: record counts for the
// collection.
func (h *HandlerImpl) StoreMetrics(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "StoreMetrics"))

	m, err := h.service.Metrics(r.Context(), h.pipelineContext(r.URL.Query().Get("base_location")))
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to read store metrics", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to read store metrics")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, m)
}

func parseIDs(raw string) ([]uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: must be a UUID", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
