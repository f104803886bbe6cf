// Package api exposes the agent's read-mostly HTTP surface: status,
// catalog, card history, diagnostics, and the websocket upgrade
// endpoint for the command channel.
package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vrarcade/kiosk/internal/agent"
	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/games"
	"github.com/vrarcade/kiosk/internal/monitor"
	"github.com/vrarcade/kiosk/internal/storage/sqlite"
	"github.com/vrarcade/kiosk/internal/websocket"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	agentService *agent.Service
	catalog      *games.Catalog
	monitor      *monitor.Monitor
	sessStore    *sqlite.SessionStorage
	cardStore    *sqlite.RFIDStorage
	config       *config.Config
	logger       *logger.Logger
	wsServer     *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(
	agentService *agent.Service,
	catalog *games.Catalog,
	mon *monitor.Monitor,
	sessStore *sqlite.SessionStorage,
	cardStore *sqlite.RFIDStorage,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Handler {
	return &Handler{
		agentService: agentService,
		catalog:      catalog,
		monitor:      mon,
		sessStore:    sessStore,
		cardStore:    cardStore,
		config:       cfg,
		logger:       log.Named("api-handler"),
		wsServer:     wsServer,
	}
}

// GetStatus returns the agent's current session and telemetry snapshot.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.agentService.Snapshot())
}

// GetGames returns the game catalog.
func (h *Handler) GetGames(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": h.catalog.Len(),
		"games": h.catalog.All(),
	})
}

// GetGameByID returns one catalog entry.
func (h *Handler) GetGameByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	game, ok := h.catalog.Get(id)
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "game not found",
			"id":    id,
		})
		return
	}
	WriteJSON(w, http.StatusOK, game)
}

// GetCard returns the registry entry for one RFID card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "tag")

	card, err := h.cardStore.Get(tagID)
	if err != nil {
		WriteJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":  "card not found",
			"tag_id": tagID,
		})
		return
	}
	WriteJSON(w, http.StatusOK, card)
}

// GetCardHistory returns recent play sessions for one RFID card.
func (h *Handler) GetCardHistory(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "tag")

	limit := h.config.RFID.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": "invalid limit parameter",
			})
			return
		}
		limit = parsed
	}

	records, err := h.sessStore.HistoryByTag(tagID, limit)
	if err != nil {
		h.logger.Error("Failed to load session history",
			logger.String("tag_id", tagID),
			logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to load session history",
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tag_id":   tagID,
		"count":    len(records),
		"sessions": records,
	})
}

// GetDiagnostics returns agent health and runtime information.
func (h *Handler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	stats := h.monitor.Stats()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":    int(h.agentService.Uptime().Seconds()),
		"connected_clients": h.wsServer.ClientCount(),
		"cpu_usage":         stats.CPUUsage,
		"memory_usage":      stats.MemoryUsage,
		"disk_space_mb":     stats.DiskFreeMB,
		"alerts":            h.monitor.Alerts(),
		"catalog_size":      h.catalog.Len(),
		"go_version":        runtime.Version(),
		"goroutines":        runtime.NumGoroutine(),
	})
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"connected_clients": h.wsServer.ClientCount(),
	})
}

// HandleWebSocket upgrades the request to a command-channel connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
