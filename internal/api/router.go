package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/controller"
	"github.com/skycast-app/skycast/internal/websocket"
	"github.com/skycast-app/skycast/pkg/logger"
)

// NewRouter creates the HTTP router with all API routes, the WebSocket
// endpoint, and the static dashboard fallback
func NewRouter(ctrl *controller.Controller, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) http.Handler {
	handler := NewHandler(ctrl, cfg, log, wsServer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.GetHealth)
		r.Get("/config", handler.GetConfig)
		r.Get("/state", handler.GetState)
		r.Get("/search", handler.Search)
		r.Post("/place", handler.SelectPlace)
		r.Post("/locate", handler.Locate)
		r.Post("/units", handler.SetUnits)
		r.Post("/theme", handler.SetTheme)
		r.Post("/forecast/refresh", handler.RefreshForecast)
		r.Get("/favorites", handler.GetFavorites)
		r.Post("/favorites/toggle", handler.ToggleFavorite)
	})

	r.Get("/ws", handler.HandleWebSocket)

	// Everything else falls through to the dashboard assets
	r.NotFound(NewStaticFileHandler(cfg.Server.StaticFilesDir, log).ServeHTTP)

	return r
}

// corsMiddleware applies the configured CORS policy
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
