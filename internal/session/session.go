// Package session implements the kiosk's single play-session state
// machine: launch, countdown, pause/resume, and end. The Session is an
// explicitly owned object (no package-level state) so multiple agents
// can coexist in one process, and Tick is the sole countdown mutator
// so the machine is testable without a real timer.
package session

import (
	"errors"
	"sync"

	"github.com/vrarcade/kiosk/pkg/logger"
)

// ErrNoActiveSession is returned by Pause and Resume when nothing is running.
var ErrNoActiveSession = errors.New("no active game session")

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	GameID        string
	GameTitle     string
	Running       bool
	Paused        bool
	Duration      int
	TimeRemaining int
}

// TickResult reports what a single tick did.
type TickResult struct {
	Broadcast bool // a periodic status broadcast is due
	Expired   bool // the countdown reached zero and the session ended
}

// Session holds the state of the one active play session. All methods
// are safe for concurrent use; the mutex serializes command handling
// against timer ticks.
type Session struct {
	mu sync.Mutex

	gameID    string
	gameTitle string
	running   bool
	paused    bool
	duration  int
	remaining int

	broadcastEvery int
	logger         *logger.Logger
}

// New creates an idle session. broadcastEvery is the countdown cadence,
// in seconds, at which periodic broadcasts are due.
func New(broadcastEvery int, log *logger.Logger) *Session {
	if broadcastEvery <= 0 {
		broadcastEvery = 10
	}
	return &Session{
		broadcastEvery: broadcastEvery,
		logger:         log.Named("session"),
	}
}

// Launch starts a session for the given game, superseding any session
// already in progress. Returns true when a running session was replaced.
func (s *Session) Launch(gameID, gameTitle string, durationSecs int) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced = s.running
	if replaced {
		s.logger.Info("Replacing active session",
			logger.String("old_game_id", s.gameID),
			logger.String("new_game_id", gameID))
	}

	s.gameID = gameID
	s.gameTitle = gameTitle
	s.running = true
	s.paused = false
	s.duration = durationSecs
	s.remaining = durationSecs

	s.logger.Info("Session started",
		logger.String("game_id", gameID),
		logger.Int("duration_seconds", durationSecs))
	return replaced
}

// Pause freezes the countdown. Ticks keep firing but stop decrementing.
func (s *Session) Pause() (timeRemaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return 0, ErrNoActiveSession
	}
	s.paused = true
	s.logger.Info("Session paused", logger.Int("time_remaining", s.remaining))
	return s.remaining, nil
}

// Resume unfreezes the countdown.
func (s *Session) Resume() (timeRemaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return 0, ErrNoActiveSession
	}
	s.paused = false
	s.logger.Info("Session resumed", logger.Int("time_remaining", s.remaining))
	return s.remaining, nil
}

// End clears the session. Ending with nothing active is not an error;
// it reports wasRunning=false.
func (s *Session) End() (wasRunning bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endLocked()
}

func (s *Session) endLocked() bool {
	wasRunning := s.running
	s.gameID = ""
	s.gameTitle = ""
	s.running = false
	s.paused = false
	s.remaining = 0
	s.duration = 0
	if wasRunning {
		s.logger.Info("Session ended")
	}
	return wasRunning
}

// Tick advances the countdown by one second. Paused or idle sessions
// are untouched. When the countdown reaches zero the session folds back
// to idle and Expired is reported along with a final broadcast.
func (s *Session) Tick() TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.paused {
		return TickResult{}
	}

	if s.remaining > 0 {
		s.remaining--
	}

	if s.remaining <= 0 {
		s.logger.Info("Session time expired", logger.String("game_id", s.gameID))
		s.endLocked()
		return TickResult{Broadcast: true, Expired: true}
	}

	return TickResult{Broadcast: s.remaining%s.broadcastEvery == 0}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		GameID:        s.gameID,
		GameTitle:     s.gameTitle,
		Running:       s.running,
		Paused:        s.paused,
		Duration:      s.duration,
		TimeRemaining: s.remaining,
	}
}
