package workers

import (
	"budget-chat/contract"
	"budget-chat/errors"
	"budget-chat/observability"
	"context"
	"log/slog"
)

// Room hosts the sessions of the single global room. Every transport hands
// its accepted connections to the same Room so they share one registry and
// one bus.
type Room struct {
	log      *slog.Logger
	registry contract.INameRegistry
	bus      contract.IBus
	stats    *observability.RoomStats
}

func NewRoom(log *slog.Logger, registry contract.INameRegistry, bus contract.IBus, stats *observability.RoomStats) *Room {
	return &Room{log: log, registry: registry, bus: bus, stats: stats}
}

// Serve runs a session on conn until it ends. Errors stay local to the
// session: they are logged, never propagated to the listener.
func (r *Room) Serve(ctx context.Context, conn contract.LineChannel) {
	session := NewSession(r.log, conn, r.registry, r.bus, r.stats)
	r.stats.SessionOpened()
	defer r.stats.SessionClosed()

	err := session.Run(ctx)
	switch {
	case err == nil:
		r.log.Debug("Session ended", "session_id", session.ID)
	case errors.IsProtocolError(err):
		r.log.Info("Handshake rejected", "session_id", session.ID, "error", err)
	case errors.Is(err, errors.ErrDisconnectedBeforeName):
		r.log.Debug("Client left during handshake", "session_id", session.ID)
	case errors.Is(err, errors.ErrSessionPanic):
		r.log.Error("Session crashed", "session_id", session.ID, "error", err)
	default:
		r.log.Warn("Session ended with error", "session_id", session.ID, "error", err)
	}
}
