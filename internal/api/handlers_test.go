package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrarcade/kiosk/internal/agent"
	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/monitor"
	"github.com/vrarcade/kiosk/internal/storage/sqlite"
	"github.com/vrarcade/kiosk/internal/websocket"
	"github.com/vrarcade/kiosk/pkg/logger"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "kiosk.db")
	cfg.Games.Catalog = []config.GameConfig{
		{ID: "beat-saber", Title: "Beat Saber"},
		{ID: "superhot", Title: "Superhot VR"},
	}
	require.NoError(t, cfg.Validate())

	log := logger.NewNop()
	store, err := sqlite.NewStore(cfg.Storage.SQLitePath, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := websocket.NewServer(log)
	go hub.Run()

	mon := monitor.New(cfg.Monitor, log)
	svc := agent.NewService(cfg, hub, mon, nil, store, log)

	router := NewRouter(
		svc,
		svc.Catalog(),
		mon,
		sqlite.NewSessionStorage(store.DB(), log),
		sqlite.NewRFIDStorage(store.DB(), log),
		cfg,
		log,
		hub,
	)

	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, srv.URL+"/api/v1/status", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, false, body["gameRunning"])
}

func TestGamesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Count int `json:"count"`
		Games []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"games"`
	}
	code := getJSON(t, srv.URL+"/api/v1/games", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Games, 2)
	assert.Equal(t, "beat-saber", body.Games[0].ID)
}

func TestGameByIDEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, srv.URL+"/api/v1/games/beat-saber", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Beat Saber", body["title"])

	code = getJSON(t, srv.URL+"/api/v1/games/half-life-3", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCardEndpoints(t *testing.T) {
	srv, store := newTestServer(t)

	code := getJSON(t, srv.URL+"/api/v1/rfid/cards/TAG-1", nil)
	assert.Equal(t, http.StatusNotFound, code)

	cards := sqlite.NewRFIDStorage(store.DB(), logger.NewNop())
	_, err := cards.Register("TAG-1", "Alice")
	require.NoError(t, err)

	var body map[string]any
	code = getJSON(t, srv.URL+"/api/v1/rfid/cards/TAG-1", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Alice", body["name"])

	var history map[string]any
	code = getJSON(t, srv.URL+"/api/v1/rfid/cards/TAG-1/history", &history)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), history["count"])

	code = getJSON(t, srv.URL+"/api/v1/rfid/cards/TAG-1/history?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDiagnosticsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, srv.URL+"/api/v1/diagnostics", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "uptime_seconds")
	assert.Equal(t, float64(2), body["catalog_size"])
	assert.NotEmpty(t, body["go_version"])
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://kiosk.local")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://kiosk.local", resp.Header.Get("Access-Control-Allow-Origin"))
}
