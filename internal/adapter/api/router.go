package api

import (
	"log/slog"
	"net/http"

	"github.com/StevenCC12/server-side-capi/internal/adapter/api/handler"
	"github.com/StevenCC12/server-side-capi/internal/adapter/api/middleware"
	"github.com/StevenCC12/server-side-capi/internal/pkg/config"
)

// NewRouter creates and configures the main HTTP router for the relay
// service.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	pipeline handler.EventPipeline,
) http.Handler {
	mux := http.NewServeMux()

	eventHandler := handler.NewEventHandler(pipeline, logger, cfg.MaxBodySize)

	mux.HandleFunc("POST /process-event", eventHandler.ProcessEvent)
	mux.HandleFunc("POST /cache-event-id", eventHandler.CacheEventID)

	mode := "live"
	if cfg.TestEventCode != "" {
		mode = "test"
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","mode":"` + mode + `"}`))
	})

	var h http.Handler = mux
	h = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)(h)
	h = middleware.CORS(cfg.AllowedOrigins)(h)

	return h
}
