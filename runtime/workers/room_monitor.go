package workers

import (
	"budget-chat/contract"
	"budget-chat/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const DefaultMetricInterval = 30 * time.Second

// RoomMonitor periodically logs the room counters along with the
// process memory and CPU usage.
type RoomMonitor struct {
	log      *slog.Logger
	stats    *observability.RoomStats
	registry contract.INameRegistry
	interval time.Duration
}

func NewRoomMonitor(log *slog.Logger, stats *observability.RoomStats,
	registry contract.INameRegistry, interval time.Duration) *RoomMonitor {
	if interval <= 0 {
		interval = DefaultMetricInterval
	}
	return &RoomMonitor{log: log, stats: stats, registry: registry, interval: interval}
}

func (w *RoomMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Room counters are still worth reporting without process metrics.
		w.log.Warn("Process metrics unavailable", "error", err)
		p = nil
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping room monitor")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *RoomMonitor) report(p *process.Process) {
	snapshot := w.stats.Snapshot()
	attrs := []any{
		"active_sessions", snapshot.ActiveSessions,
		"claimed_names", w.registry.Len(),
		"joins", snapshot.Joins,
		"rejected", snapshot.Rejected,
		"messages", snapshot.Messages,
		"dropped_events", snapshot.DroppedEvents,
		"worker_restarts", snapshot.WorkerRestarts,
		"uptime", time.Since(snapshot.StartedAt).Round(time.Second).String(),
	}
	if p != nil {
		if rss, cpu, err := selfStats(p); err != nil {
			w.log.Debug("Failed to collect self stats", "error", err)
		} else {
			attrs = append(attrs, "rss_bytes", rss, "cpu_percent", cpu)
		}
	}
	w.log.Info("Room status", attrs...)
}

// selfStats retrieves the resident memory and CPU usage of the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
