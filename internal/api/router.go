package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vrarcade/kiosk/internal/agent"
	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/games"
	"github.com/vrarcade/kiosk/internal/monitor"
	"github.com/vrarcade/kiosk/internal/storage/sqlite"
	"github.com/vrarcade/kiosk/internal/websocket"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// Router wraps the chi router with the API handlers
type Router struct {
	handler *Handler
	config  *config.Config
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	agentService *agent.Service,
	catalog *games.Catalog,
	mon *monitor.Monitor,
	sessStore *sqlite.SessionStorage,
	cardStore *sqlite.RFIDStorage,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Router {
	return &Router{
		handler: NewHandler(agentService, catalog, mon, sessStore, cardStore, cfg, log, wsServer),
		config:  cfg,
		logger:  log.Named("api-router"),
	}
}

// Routes returns the configured HTTP handler.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware(rt.config.Server.CORSAllowed))

	r.Get("/health", rt.handler.GetHealth)
	r.Get("/ws", rt.handler.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", rt.handler.GetStatus)
		r.Get("/diagnostics", rt.handler.GetDiagnostics)

		r.Route("/games", func(r chi.Router) {
			r.Get("/", rt.handler.GetGames)
			r.Get("/{id}", rt.handler.GetGameByID)
		})

		r.Route("/rfid/cards/{tag}", func(r chi.Router) {
			r.Get("/", rt.handler.GetCard)
			r.Get("/history", rt.handler.GetCardHistory)
		})
	})

	return r
}

// corsMiddleware applies the configured allowed origins. An empty list
// or a "*" entry allows any origin.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0
	allowedSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		allowedSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowedSet[origin]) {
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
