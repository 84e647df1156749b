package dispute

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Monitor periodically runs the escalation sweep.
type Monitor struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewMonitor creates a new escalation monitor.
func NewMonitor(service *Service, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Monitor{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the monitor loop is actively running.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.running.Store(true)
	defer m.running.Store(false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.safeSweep(ctx)
		}
	}
}

// Stop signals the monitor to stop.
func (m *Monitor) Stop() {
	select {
	case m.stop <- struct{}{}:
	default:
	}
}

func (m *Monitor) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in escalation monitor", "panic", fmt.Sprint(r))
		}
	}()

	result, err := m.service.RunEscalationSweep(ctx, time.Now())
	if err != nil {
		m.logger.Warn("escalation sweep failed", "error", err)
		return
	}
	if result.Escalated > 0 {
		m.logger.Info("escalated overdue disputes",
			"count", result.Escalated, "disputeIds", result.DisputeIDs)
	}
}
