package observability

import (
	"sync/atomic"
	"time"
)

// RoomStatsSnapshot is a point-in-time copy of RoomStats.
type RoomStatsSnapshot struct {
	ActiveSessions int64     `json:"active_sessions"`
	Joins          uint64    `json:"joins"`
	Rejected       uint64    `json:"rejected"`
	Messages       uint64    `json:"messages"`
	DroppedEvents  uint64    `json:"dropped_events"`
	WorkerRestarts uint64    `json:"worker_restarts"`
	StartedAt      time.Time `json:"started_at"`
}

// RoomStats aggregates room counters. A nil *RoomStats ignores every update.
type RoomStats struct {
	activeSessions atomic.Int64
	joins          atomic.Uint64
	rejected       atomic.Uint64
	messages       atomic.Uint64
	droppedEvents  atomic.Uint64
	workerRestarts atomic.Uint64
	startedAt      time.Time
}

func NewRoomStats() *RoomStats {
	return &RoomStats{startedAt: time.Now().UTC()}
}

func (s *RoomStats) SessionOpened() {
	if s != nil {
		s.activeSessions.Add(1)
	}
}

func (s *RoomStats) SessionClosed() {
	if s != nil {
		s.activeSessions.Add(-1)
	}
}

func (s *RoomStats) Joined() {
	if s != nil {
		s.joins.Add(1)
	}
}

// Rejected counts handshakes refused for an invalid or taken name.
func (s *RoomStats) Rejected() {
	if s != nil {
		s.rejected.Add(1)
	}
}

func (s *RoomStats) MessagePosted() {
	if s != nil {
		s.messages.Add(1)
	}
}

func (s *RoomStats) EventDropped() {
	if s != nil {
		s.droppedEvents.Add(1)
	}
}

func (s *RoomStats) WorkerRestarted() {
	if s != nil {
		s.workerRestarts.Add(1)
	}
}

func (s *RoomStats) Snapshot() RoomStatsSnapshot {
	if s == nil {
		return RoomStatsSnapshot{}
	}
	return RoomStatsSnapshot{
		ActiveSessions: s.activeSessions.Load(),
		Joins:          s.joins.Load(),
		Rejected:       s.rejected.Load(),
		Messages:       s.messages.Load(),
		DroppedEvents:  s.droppedEvents.Load(),
		WorkerRestarts: s.workerRestarts.Load(),
		StartedAt:      s.startedAt,
	}
}
