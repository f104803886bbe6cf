// Package agent is the kiosk-side brain of the command channel. It owns
// the play-session state machine, the game launcher, hardware telemetry,
// and persistence, and exposes them to connected command-center clients
// through the websocket hub.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/games"
	"github.com/vrarcade/kiosk/internal/monitor"
	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/internal/rfid"
	"github.com/vrarcade/kiosk/internal/session"
	"github.com/vrarcade/kiosk/internal/storage/sqlite"
	"github.com/vrarcade/kiosk/internal/websocket"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// GreetingMessage is pushed to every client shortly after it connects.
const GreetingMessage = "Connected to VR Command Center"

// Service coordinates the session machine, launcher, monitor, storage,
// and the websocket hub.
type Service struct {
	cfg    *config.Config
	logger *logger.Logger

	session  *session.Session
	timer    *session.Timer
	catalog  *games.Catalog
	launcher *games.Launcher
	monitor  *monitor.Monitor
	hub      *websocket.Server
	reader   rfid.Reader

	store     *sqlite.Store
	gameStore *sqlite.GameStorage
	sessStore *sqlite.SessionStorage
	cardStore *sqlite.RFIDStorage

	started time.Time

	mu           sync.Mutex
	sessionRowID string // storage row for the active session, if any
}

// NewService wires the agent together. Call Start before serving.
func NewService(
	cfg *config.Config,
	hub *websocket.Server,
	mon *monitor.Monitor,
	reader rfid.Reader,
	store *sqlite.Store,
	log *logger.Logger,
) *Service {
	svc := &Service{
		cfg:       cfg,
		logger:    log.Named("agent"),
		catalog:   games.NewCatalog(cfg.Games, log),
		launcher:  games.NewLauncher(time.Duration(cfg.Games.TerminateGraceSecs)*time.Second, log),
		monitor:   mon,
		hub:       hub,
		reader:    reader,
		store:     store,
		gameStore: sqlite.NewGameStorage(store.DB(), log),
		sessStore: sqlite.NewSessionStorage(store.DB(), log),
		cardStore: sqlite.NewRFIDStorage(store.DB(), log),
	}

	svc.session = session.New(cfg.Session.BroadcastEverySeconds, log)
	svc.timer = session.NewTimer(
		svc.session,
		time.Duration(cfg.Session.TickSeconds)*time.Second,
		log,
		svc.broadcastStatus,
		svc.handleExpiry,
	)

	hub.SetCommandHandler(svc)
	hub.SetConnectHandler(svc)
	return svc
}

// Start primes the service: catalog import and telemetry sampling.
func (s *Service) Start(ctx context.Context) error {
	s.started = time.Now()

	if err := s.gameStore.ImportCatalog(s.catalog.All()); err != nil {
		return err
	}

	s.monitor.Start(ctx)

	s.logger.Info("Agent service started",
		logger.Int("catalog_size", s.catalog.Len()))
	return nil
}

// Stop halts the countdown, terminates any running game, and stops
// telemetry sampling.
func (s *Service) Stop() {
	s.timer.Stop()
	if s.session.End() {
		s.closeSessionRow()
	}
	s.launcher.Terminate()
	s.monitor.Stop()
	if s.reader != nil {
		s.reader.Close()
	}
	s.logger.Info("Agent service stopped")
}

// HandleConnect schedules the greeting snapshot for a new client.
func (s *Service) HandleConnect(client *websocket.Client) {
	delay := time.Duration(s.cfg.Session.GreetingDelayMs) * time.Millisecond

	go func() {
		time.Sleep(delay)

		resp, err := protocol.NewSuccess(uuid.NewString(), map[string]any{
			"message": GreetingMessage,
			"status":  s.statusSnapshot(),
		})
		if err != nil {
			s.logger.Error("Failed to build greeting", logger.Error(err))
			return
		}
		client.Send(resp)
	}()
}

// HandleCommand dispatches one command frame. Each command runs in its
// own goroutine so slow operations (rfid scans, launch delays) never
// stall the client's read loop.
func (s *Service) HandleCommand(client *websocket.Client, cmd *protocol.Command) {
	go s.dispatch(client, cmd)
}

// statusSnapshot assembles the wire-format status from the session
// machine and the latest telemetry sample.
func (s *Service) statusSnapshot() protocol.StatusSnapshot {
	snap := s.session.Snapshot()
	stats := s.monitor.Stats()

	status := protocol.StatusSnapshot{
		Connected:     true,
		GameRunning:   snap.Running,
		IsPaused:      snap.Paused,
		TimeRemaining: snap.TimeRemaining,
		CPUUsage:      stats.CPUUsage,
		MemoryUsage:   stats.MemoryUsage,
		DiskSpaceMB:   stats.DiskFreeMB,
		Alerts:        s.monitor.Alerts(),
	}
	if snap.Running {
		title := snap.GameTitle
		status.ActiveGame = &title
	}
	return status
}

// Catalog returns the configured game catalog.
func (s *Service) Catalog() *games.Catalog {
	return s.catalog
}

// Snapshot returns the current wire-format status snapshot.
func (s *Service) Snapshot() protocol.StatusSnapshot {
	return s.statusSnapshot()
}

// broadcastStatus pushes the current snapshot to every connected client.
// Broadcast frames carry a fresh ID so they never match a pending command.
func (s *Service) broadcastStatus() {
	resp, err := protocol.NewSuccess(uuid.NewString(), s.statusSnapshot())
	if err != nil {
		s.logger.Error("Failed to build status broadcast", logger.Error(err))
		return
	}
	s.hub.Broadcast(resp)
}

// handleExpiry runs when the countdown reaches zero: the session machine
// has already folded back to idle, so only cleanup and the final
// broadcast remain.
func (s *Service) handleExpiry() {
	s.logger.Info("Session expired, terminating game")
	s.launcher.Terminate()
	s.closeSessionRow()
	s.broadcastStatus()
}

// closeSessionRow finalizes the storage row for the session that just
// ended, if one was recorded.
func (s *Service) closeSessionRow() {
	s.mu.Lock()
	rowID := s.sessionRowID
	s.sessionRowID = ""
	s.mu.Unlock()

	if rowID == "" {
		return
	}
	if err := s.sessStore.EndSession(rowID); err != nil {
		s.logger.Error("Failed to close session record",
			logger.String("session_id", rowID),
			logger.Error(err))
	}
}

// openSessionRow replaces the tracked storage row with a fresh one for
// a newly launched session, closing the previous row first.
func (s *Service) openSessionRow(gameID string, durationSecs int, rfidTag string) {
	s.closeSessionRow()

	rowID, err := s.sessStore.StartSession(gameID, durationSecs, rfidTag)
	if err != nil {
		s.logger.Error("Failed to record session start",
			logger.String("game_id", gameID),
			logger.Error(err))
		return
	}

	s.mu.Lock()
	s.sessionRowID = rowID
	s.mu.Unlock()
}

// Uptime reports how long the agent has been running.
func (s *Service) Uptime() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}
