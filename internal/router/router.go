package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sierge-ai/activity-engine/internal/api/activity"
	"github.com/sierge-ai/activity-engine/internal/api/geocoding"
	"github.com/sierge-ai/activity-engine/internal/api/ingest"
)

// Config contains the handlers the router wires up.
type Config struct {
	ActivityHandler *activity.HandlerImpl
	IngestHandler   *ingest.HandlerImpl
	ContextHandler  *geocoding.ContextHandler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/activities", func(r chi.Router) {
			r.Post("/ingest", cfg.IngestHandler.IngestBatches)
			r.Post("/save", cfg.ActivityHandler.SaveActivities)
			r.Post("/query", cfg.ActivityHandler.QueryActivities)
			r.Get("/", cfg.ActivityHandler.GetActivities)
			r.Delete("/", cfg.ActivityHandler.DeleteActivities)
			r.Get("/scroll", cfg.ActivityHandler.ScrollActivities)
			r.Get("/metrics", cfg.ActivityHandler.StoreMetrics)
		})

		r.Get("/context", cfg.ContextHandler.GetLocalContext)
	})

	return r
}
