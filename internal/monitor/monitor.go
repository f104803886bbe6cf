// Package monitor samples hardware telemetry (cpu, memory, disk) for
// status snapshots and diagnostics.
package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// Stats is the latest sampled telemetry.
type Stats struct {
	CPUUsage    float64 // percent
	MemoryUsage float64 // percent
	DiskFreeMB  float64
}

// Monitor periodically samples system resources in the background.
type Monitor struct {
	cfg    config.MonitorConfig
	logger *logger.Logger

	mu    sync.RWMutex
	stats Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. Call Start to begin sampling.
func New(cfg config.MonitorConfig, log *logger.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		logger: log.Named("monitor"),
	}
}

// Start begins the background sampling loop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("Starting system monitor",
		logger.Int("interval_seconds", m.cfg.UpdateIntervalSecs))

	go func() {
		defer close(m.done)

		// Prime the stats before the first interval elapses.
		m.sample(ctx)

		ticker := time.NewTicker(time.Duration(m.cfg.UpdateIntervalSecs) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample(ctx)
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.logger.Info("System monitor stopped")
}

func (m *Monitor) sample(ctx context.Context) {
	var stats Stats

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUUsage = percents[0]
	} else if err != nil {
		m.logger.Warn("Failed to sample CPU usage", logger.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsage = vm.UsedPercent
	} else {
		m.logger.Warn("Failed to sample memory usage", logger.Error(err))
	}

	diskPath := "/"
	if runtime.GOOS == "windows" {
		diskPath = "C:\\"
	}
	if usage, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		stats.DiskFreeMB = float64(usage.Free) / (1024 * 1024)
	} else {
		m.logger.Warn("Failed to sample disk usage", logger.Error(err))
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}

// Stats returns the most recently sampled telemetry.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Alerts returns human-readable alerts for thresholds currently exceeded.
func (m *Monitor) Alerts() []string {
	stats := m.Stats()

	var alerts []string
	if m.cfg.CPUAlertThreshold > 0 && stats.CPUUsage > m.cfg.CPUAlertThreshold {
		alerts = append(alerts, fmt.Sprintf("CPU usage high: %.0f%%", stats.CPUUsage))
	}
	if m.cfg.MemAlertThreshold > 0 && stats.MemoryUsage > m.cfg.MemAlertThreshold {
		alerts = append(alerts, fmt.Sprintf("Memory usage high: %.0f%%", stats.MemoryUsage))
	}
	if m.cfg.DiskAlertMinFreeMB > 0 && stats.DiskFreeMB > 0 && stats.DiskFreeMB < m.cfg.DiskAlertMinFreeMB {
		alerts = append(alerts, fmt.Sprintf("Disk space low: %.0f MB free", stats.DiskFreeMB))
	}
	return alerts
}
