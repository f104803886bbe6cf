package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/pkg/logger"
)

func TestSampleCollectsTelemetry(t *testing.T) {
	m := New(config.MonitorConfig{UpdateIntervalSecs: 1}, logger.NewNop())

	m.sample(context.Background())

	stats := m.Stats()
	assert.GreaterOrEqual(t, stats.CPUUsage, 0.0)
	assert.Greater(t, stats.MemoryUsage, 0.0, "memory usage should always be measurable")
	assert.Greater(t, stats.DiskFreeMB, 0.0, "disk free should always be measurable")
}

func TestStartStop(t *testing.T) {
	m := New(config.MonitorConfig{UpdateIntervalSecs: 1}, logger.NewNop())

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return m.Stats().MemoryUsage > 0
	}, 5*time.Second, 50*time.Millisecond)
	m.Stop()
}

func TestAlerts(t *testing.T) {
	m := New(config.MonitorConfig{
		CPUAlertThreshold:  90,
		MemAlertThreshold:  90,
		DiskAlertMinFreeMB: 1024,
	}, logger.NewNop())

	m.mu.Lock()
	m.stats = Stats{CPUUsage: 50, MemoryUsage: 60, DiskFreeMB: 20480}
	m.mu.Unlock()
	assert.Empty(t, m.Alerts())

	m.mu.Lock()
	m.stats = Stats{CPUUsage: 95, MemoryUsage: 97, DiskFreeMB: 100}
	m.mu.Unlock()

	alerts := m.Alerts()
	assert.Len(t, alerts, 3)
	assert.Contains(t, alerts[0], "CPU usage high")
	assert.Contains(t, alerts[1], "Memory usage high")
	assert.Contains(t, alerts[2], "Disk space low")
}

func TestAlertsDisabledThresholds(t *testing.T) {
	m := New(config.MonitorConfig{}, logger.NewNop())

	m.mu.Lock()
	m.stats = Stats{CPUUsage: 99, MemoryUsage: 99, DiskFreeMB: 1}
	m.mu.Unlock()
	assert.Empty(t, m.Alerts())
}
