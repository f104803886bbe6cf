package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vrarcade/kiosk/pkg/logger"
)

func TestTimerDrivesCountdownToExpiry(t *testing.T) {
	s := New(10, logger.NewNop())
	s.Launch("beat-saber", "Beat Saber", 3)

	var expired atomic.Int32
	timer := NewTimer(s, 10*time.Millisecond, logger.NewNop(),
		nil,
		func() { expired.Add(1) })

	timer.Start()
	defer timer.Stop()

	assert.Eventually(t, func() bool {
		return expired.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, s.Snapshot().Running)

	// The expired loop exits on its own.
	assert.Eventually(t, func() bool {
		return timer.Live() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTimerRestartCancelsPrevious(t *testing.T) {
	s := New(10, logger.NewNop())
	s.Launch("beat-saber", "Beat Saber", 10000)

	timer := NewTimer(s, 5*time.Millisecond, logger.NewNop(), nil, nil)

	// Start joins the superseded loop before spawning its replacement,
	// so two loops never overlap, not even transiently.
	for i := 0; i < 20; i++ {
		timer.Start()
		assert.Equal(t, 1, timer.Live())
	}
	defer timer.Stop()
}

func TestTimerStop(t *testing.T) {
	s := New(10, logger.NewNop())
	s.Launch("beat-saber", "Beat Saber", 10000)

	timer := NewTimer(s, 5*time.Millisecond, logger.NewNop(), nil, nil)
	timer.Start()
	timer.Stop()

	// Stop waits for the loop to exit before returning.
	assert.Equal(t, 0, timer.Live())

	remaining := s.Snapshot().TimeRemaining
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, remaining, s.Snapshot().TimeRemaining, "stopped timer must not tick")
}

func TestTimerStopWithoutStart(t *testing.T) {
	s := New(10, logger.NewNop())
	timer := NewTimer(s, time.Second, logger.NewNop(), nil, nil)
	timer.Stop()
	assert.Equal(t, 0, timer.Live())
}

func TestTimerBroadcastCallback(t *testing.T) {
	s := New(1, logger.NewNop()) // broadcast on every remaining value
	s.Launch("beat-saber", "Beat Saber", 10000)

	var broadcasts atomic.Int32
	timer := NewTimer(s, 5*time.Millisecond, logger.NewNop(),
		func() { broadcasts.Add(1) },
		nil)

	timer.Start()
	defer timer.Stop()

	assert.Eventually(t, func() bool {
		return broadcasts.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}
