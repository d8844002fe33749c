package ingest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sierge-ai/activity-engine/internal/api"
	"github.com/sierge-ai/activity-engine/internal/api/activity"
	"github.com/sierge-ai/activity-engine/internal/types"
)

// HandlerImpl exposes the ingest pipeline over HTTP.
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

type ingestRequest struct {
	BaseLocation string                   `json:"base_location,omitempty"`
	Batches      []types.RawProviderBatch `json:"batches"`
}

// IngestBatches handles POST /activities/ingest: raw provider result batches
// through the normalize → resolve → save pipeline.
func (h *HandlerImpl) IngestBatches(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "IngestBatches"))

	// Lenient decode: provider payloads carry whatever keys the upstream
	// search returned; extra keys are dropped, not rejected.
	var req ingestRequest
	if err := api.DecodeJSONBodyLenient(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Batches) == 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "batches must not be empty")
		return
	}

	pctx := h.defaults
	if req.BaseLocation != "" {
		pctx.BaseLocation = req.BaseLocation
	}

	result, err := h.service.Ingest(r.Context(), pctx, req.Batches)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to ingest batches", slog.Any("error", err))
		if errors.Is(err, activity.ErrMissingBaseLocation) {
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		api.ErrorResponse(w, r, http.StatusBadGateway, "failed to ingest batches")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, result)
}
