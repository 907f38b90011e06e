package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/aidekit/aide-be/internal/metrics"
)

// ChangeFunc is invoked on every actual status transition with the new
// and previous status. Errors are logged and swallowed; a failing
// callback never terminates the monitor.
type ChangeFunc func(ctx context.Context, newStatus, prevStatus Status) error

// MonitorConfig holds health monitor configuration.
type MonitorConfig struct {
	// Dependency names the probed service in logs and metrics.
	Dependency string
	// Interval between checks.
	Interval time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
	// TTL is the freshness window of the persisted record. Must exceed
	// Interval or readers flap to unknown between checks.
	TTL time.Duration
}

// Monitor probes an external dependency on a fixed interval, persists a
// rolling status record with an expiry, and fires an edge-triggered
// callback on status changes.
type Monitor struct {
	prober   Prober
	store    StatusStore
	onChange ChangeFunc
	logger   *slog.Logger

	dependency   string
	interval     time.Duration
	probeTimeout time.Duration
	ttl          time.Duration
}

// NewMonitor creates a health monitor.
func NewMonitor(prober Prober, store StatusStore, onChange ChangeFunc, cfg *MonitorConfig, logger *slog.Logger) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	ttl := cfg.TTL
	if ttl <= interval {
		ttl = 2 * interval
	}

	return &Monitor{
		prober:       prober,
		store:        store,
		onChange:     onChange,
		logger:       logger.With(slog.String("dependency", cfg.Dependency)),
		dependency:   cfg.Dependency,
		interval:     interval,
		probeTimeout: probeTimeout,
		ttl:          ttl,
	}
}

// Run checks the dependency until the context is cancelled. Shutdown
// latency is at most one interval; probe connections are released on
// exit even when cancelled mid-loop.
func (m *Monitor) Run(ctx context.Context) {
	defer func() {
		if closer, ok := m.prober.(interface{ Close() }); ok {
			closer.Close()
		}
	}()

	m.logger.Info("Health monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("probe_timeout", m.probeTimeout),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Status computed on the previous iteration. Empty until the first
	// check completes, which is how the callback stays silent on it.
	var prev Status

	for {
		status := m.check(ctx)

		if prev != "" && status != prev {
			m.logger.Info("Dependency status changed",
				slog.String("status", string(status)),
				slog.String("previous", string(prev)),
			)
			if m.onChange != nil {
				if err := m.onChange(ctx, status, prev); err != nil {
					m.logger.Error("Status-change callback failed",
						slog.Any("error", err),
					)
				}
			}
		}
		prev = status

		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped - context canceled")
			return
		case <-ticker.C:
		}
	}
}

// check probes once and persists the outcome. No failure path escapes:
// every probe produces a status record.
func (m *Monitor) check(ctx context.Context) Status {
	record := &Record{LastCheck: time.Now().UTC()}

	// Carry forward counters from the persisted record so restarts do
	// not reset the failure streak mid-outage.
	if previous, err := m.store.Get(ctx); err != nil {
		m.logger.Warn("Failed to read previous health record",
			slog.Any("error", err),
		)
	} else if previous != nil {
		record.LastSuccess = previous.LastSuccess
		record.LastFailure = previous.LastFailure
		record.ConsecutiveFailures = previous.ConsecutiveFailures
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	if err != nil {
		record.Status = StatusUnhealthy
		record.ConsecutiveFailures++
		record.LastFailure = record.LastCheck
		metrics.DependencyHealthy.WithLabelValues(m.dependency).Set(0)
		m.logger.Warn("Dependency probe failed",
			slog.Int("consecutive_failures", record.ConsecutiveFailures),
			slog.Any("error", err),
		)
	} else {
		record.Status = StatusHealthy
		record.ConsecutiveFailures = 0
		record.LastSuccess = record.LastCheck
		metrics.DependencyHealthy.WithLabelValues(m.dependency).Set(1)
		m.logger.Debug("Dependency probe succeeded")
	}

	if err := m.store.Set(ctx, record, m.ttl); err != nil {
		m.logger.Error("Failed to persist health record",
			slog.Any("error", err),
		)
	}

	return record.Status
}
