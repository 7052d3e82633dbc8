package api

import (
	"net/http"
)

// Service identifies the API on the root endpoint.
const Service = "tradematch-api"

// RoutesConfig collects the handlers mounted by Routes.
type RoutesConfig struct {
	Exporters *ExporterHandlers
	Health    *HealthHandlers
	// SwipeMiddleware wraps the swipe endpoint, typically with a rate limiter.
	SwipeMiddleware func(http.Handler) http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Version string
}

// Routes registers every API route on a new ServeMux.
func Routes(cfg RoutesConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", cfg.Health.Health)
	mux.HandleFunc("/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	var swipes http.Handler = http.HandlerFunc(cfg.Exporters.RecordSwipe)
	if cfg.SwipeMiddleware != nil {
		swipes = cfg.SwipeMiddleware(swipes)
	}
	mux.Handle("/api/v1/swipes", swipes)
	mux.Handle("/api/v1/exporters/", cfg.Exporters)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r.Context(), http.StatusOK, map[string]string{
			"service": Service,
			"version": version,
		})
	})

	return mux
}
