package games

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vrarcade/kiosk/pkg/logger"
)

// Launcher starts and terminates game processes. When a game's
// executable is missing on disk the launch succeeds in simulation mode
// (no process), matching how the kiosk behaves on dev machines.
type Launcher struct {
	terminateGrace time.Duration
	logger         *logger.Logger

	mu      sync.Mutex
	current *exec.Cmd
}

// NewLauncher creates a launcher with the given termination grace period.
func NewLauncher(terminateGrace time.Duration, log *logger.Logger) *Launcher {
	return &Launcher{
		terminateGrace: terminateGrace,
		logger:         log.Named("launcher"),
	}
}

// Launch starts the process for the given game, terminating any
// previously launched process first. Returns true when a real process
// was started, false when running in simulation mode.
func (l *Launcher) Launch(game *Game) (bool, error) {
	l.Terminate()

	if game.ExecutablePath == "" {
		l.logger.Info("No executable configured, running in simulation mode",
			logger.String("game_id", game.ID))
		return false, nil
	}
	if _, err := os.Stat(game.ExecutablePath); err != nil {
		l.logger.Warn("Game executable not found, running in simulation mode",
			logger.String("game_id", game.ID),
			logger.String("executable", game.ExecutablePath))
		return false, nil
	}

	args := []string{}
	if game.Arguments != "" {
		args = strings.Fields(game.Arguments)
	}

	cmd := exec.Command(game.ExecutablePath, args...)
	if game.WorkingDirectory != "" {
		cmd.Dir = game.WorkingDirectory
	}

	if err := cmd.Start(); err != nil {
		return false, err
	}

	l.mu.Lock()
	l.current = cmd
	l.mu.Unlock()

	l.logger.Info("Game process started",
		logger.String("game_id", game.ID),
		logger.Int("pid", cmd.Process.Pid))
	return true, nil
}

// Terminate stops the current game process if one is running. The
// process gets the grace period to exit before being killed.
func (l *Launcher) Terminate() {
	l.mu.Lock()
	cmd := l.current
	l.current = nil
	l.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	l.logger.Info("Terminating game process", logger.Int("pid", cmd.Process.Pid))

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		l.logger.Warn("Failed to signal game process, killing it", logger.Error(err))
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(l.terminateGrace):
		l.logger.Warn("Game process did not exit within grace period, killing it",
			logger.Int("pid", cmd.Process.Pid))
		_ = cmd.Process.Kill()
		<-done
	}
}

// Running reports whether a real game process is currently alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || l.current.Process == nil {
		return false
	}
	// ProcessState is set once Wait has observed the exit.
	return l.current.ProcessState == nil
}
