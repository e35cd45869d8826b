package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"chat-relay/observability"
	"chat-relay/registry"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker periodically logs a health line combining process
// self-stats with the relay's live gauges and counters.
type HeartbeatWorker struct {
	log      *slog.Logger
	interval time.Duration
	sessions *registry.SessionRegistry
	rooms    *registry.RoomManager
	stats    *observability.Stats
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration,
	sessions *registry.SessionRegistry, rooms *registry.RoomManager,
	stats *observability.Stats) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:      log,
		interval: interval,
		sessions: sessions,
		rooms:    rooms,
		stats:    stats,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			snapshot := w.stats.Snapshot()
			w.log.Info("heartbeat",
				"connections", w.sessions.ConnectionCount(),
				"online_users", w.sessions.UserCount(),
				"rooms", w.rooms.RoomCount(),
				"messages_sent", snapshot.MessagesSent,
				"messages_read", snapshot.MessagesRead,
				"status_updates", snapshot.StatusUpdates,
				"typing_signals", snapshot.TypingSignals,
				"notifications", snapshot.Notifications,
				"rejected_sends", snapshot.RejectedSends,
				"dropped_events", snapshot.DroppedEvents,
				"ram_bytes", rss,
				"cpu_percent", cpu,
			)
		}
	}
}

// selfStats retrieves memory and CPU usage of this process.
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
