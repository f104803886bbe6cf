package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vrarcade/kiosk/pkg/logger"
)

// Timer drives a Session's countdown from a real clock. Exactly one
// timer goroutine is live at a time: Start cancels the previous one
// before spawning a replacement, so back-to-back launches never layer
// countdowns.
type Timer struct {
	session  *Session
	interval time.Duration
	logger   *logger.Logger

	onBroadcast func()
	onExpired   func()

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
	live atomic.Int32
}

// NewTimer creates a timer for the given session. onBroadcast fires for
// periodic status pushes, onExpired once when the countdown hits zero.
func NewTimer(s *Session, interval time.Duration, log *logger.Logger, onBroadcast, onExpired func()) *Timer {
	return &Timer{
		session:     s,
		interval:    interval,
		logger:      log.Named("session-timer"),
		onBroadcast: onBroadcast,
		onExpired:   onExpired,
	}
}

// Start begins (or restarts) the tick loop, cancelling any previous one.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	t.live.Add(1)

	go func() {
		defer close(done)
		defer t.live.Add(-1)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// A tick and the stop signal can be ready at once; a
				// cancelled loop must never tick again.
				select {
				case <-stop:
					return
				default:
				}
				result := t.session.Tick()
				if result.Expired {
					if t.onExpired != nil {
						t.onExpired()
					}
					return
				}
				if result.Broadcast && t.onBroadcast != nil {
					t.onBroadcast()
				}
			}
		}
	}()
}

// Stop cancels the tick loop if one is running.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// stopLocked signals the current tick loop and waits for it to exit, so
// a replacement never overlaps with its predecessor.
func (t *Timer) stopLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
	t.done = nil
}

// Live returns the number of non-cancelled timer goroutines. It is at
// most 1; exposed for invariant checks.
func (t *Timer) Live() int {
	return int(t.live.Load())
}
