package geocoding

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sierge-ai/activity-engine/internal/api"
)

// ContextHandler exposes the local time/weather bundle consumed by the
// itinerary collaborator.
type ContextHandler struct {
	service    *ContextService
	defaultLat float64
	defaultLon float64
	logger     *slog.Logger
}

func NewContextHandler(service *ContextService, defaultLat, defaultLon float64, logger *slog.Logger) *ContextHandler {
	return &ContextHandler{
		service:    service,
		defaultLat: defaultLat,
		defaultLon: defaultLon,
		logger:     logger,
	}
}

// GetLocalContext handles GET /context?lat=&lon=. Coordinates default to the
// configured base location point.
func (h *ContextHandler) GetLocalContext(w http.ResponseWriter, r *http.Request) {
	lat, lon := h.defaultLat, h.defaultLon

	if raw := r.URL.Query().Get("lat"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			api.ErrorResponse(w, r, http.StatusBadRequest, "invalid lat")
			return
		}
		lat = v
	}
	if raw := r.URL.Query().Get("lon"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			api.ErrorResponse(w, r, http.StatusBadRequest, "invalid lon")
			return
		}
		lon = v
	}

	api.WriteJSONResponse(w, r, http.StatusOK, h.service.GetLocalContext(r.Context(), lat, lon))
}
