// Package rfid abstracts the kiosk's RFID reader hardware.
package rfid

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// ErrReaderUnavailable indicates the reader hardware is missing or
// disconnected, as opposed to a scan simply timing out.
var ErrReaderUnavailable = errors.New("rfid reader unavailable")

// Reader reads RFID tags. Scan blocks until a tag is presented, the
// context is cancelled, or the hardware fails.
type Reader interface {
	Scan(ctx context.Context) (tagID string, err error)
	Close() error
}

// SimulatedReader stands in for real hardware: a scan yields a fresh
// test tag after a short delay, or a tag injected via Present.
type SimulatedReader struct {
	delay  time.Duration
	logger *logger.Logger

	mu        sync.Mutex
	presented chan string
	closed    bool
}

// NewSimulatedReader creates a simulated reader that answers scans
// after the given delay.
func NewSimulatedReader(delay time.Duration, log *logger.Logger) *SimulatedReader {
	return &SimulatedReader{
		delay:     delay,
		logger:    log.Named("rfid-sim"),
		presented: make(chan string, 4),
	}
}

// Present injects a tag as if a card had been tapped on the reader.
func (r *SimulatedReader) Present(tagID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.presented <- tagID:
	default:
		r.logger.Warn("Dropping presented tag, queue full", logger.String("tag_id", tagID))
	}
}

// Scan waits for a presented tag; absent one, it fabricates a test tag
// after the configured delay.
func (r *SimulatedReader) Scan(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrReaderUnavailable
	}
	r.mu.Unlock()

	select {
	case tag := <-r.presented:
		r.logger.Info("RFID tag read", logger.String("tag_id", tag))
		return tag, nil
	case <-time.After(r.delay):
		tag := "TEST-" + uuid.NewString()[:8]
		r.logger.Info("Simulated RFID tag read", logger.String("tag_id", tag))
		return tag, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the reader down; subsequent scans fail.
func (r *SimulatedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
