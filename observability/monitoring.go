// Package observability aggregates live counters of the relay core for
// the heartbeat worker to report.
package observability

import (
	"sync/atomic"
)

// Stats collects lock-free counters from the hot paths. Gauges that have
// an owner elsewhere (live connections, rooms) are read from their
// registries at report time instead of being duplicated here.
type Stats struct {
	MessagesSent  atomic.Uint64
	MessagesRead  atomic.Uint64
	StatusUpdates atomic.Uint64
	TypingSignals atomic.Uint64
	Notifications atomic.Uint64
	RejectedSends atomic.Uint64
	DroppedEvents atomic.Uint64
	SearchQueries atomic.Uint64
}

// Snapshot is one consistent-enough view of the counters for logging.
type Snapshot struct {
	MessagesSent  uint64
	MessagesRead  uint64
	StatusUpdates uint64
	TypingSignals uint64
	Notifications uint64
	RejectedSends uint64
	DroppedEvents uint64
	SearchQueries uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		MessagesSent:  s.MessagesSent.Load(),
		MessagesRead:  s.MessagesRead.Load(),
		StatusUpdates: s.StatusUpdates.Load(),
		TypingSignals: s.TypingSignals.Load(),
		Notifications: s.Notifications.Load(),
		RejectedSends: s.RejectedSends.Load(),
		DroppedEvents: s.DroppedEvents.Load(),
		SearchQueries: s.SearchQueries.Load(),
	}
}
