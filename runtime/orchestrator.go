// Package runtime holds the shared room state and wires the workers serving it.
// It owns the name registry and the broadcast bus but no protocol rules.
package runtime

import (
	"budget-chat/contract"
	"budget-chat/observability"
	"budget-chat/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       *NameRegistry
	bus            *Bus
	stats          *observability.RoomStats
	room           *workers.Room
	background     []contract.Worker
	listeners      []contract.Listener
	metricInterval time.Duration
	started        bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry *NameRegistry,
	bus *Bus, stats *observability.RoomStats, metricInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		bus:            bus,
		stats:          stats,
		room:           workers.NewRoom(log, registry, bus, stats),
		metricInterval: metricInterval,
	}
}

// Room is the connection handler every transport hands its connections to.
func (o *Orchestrator) Room() contract.ConnectionHandler {
	return o.room
}

func (o *Orchestrator) Stats() *observability.RoomStats {
	return o.stats
}

// Add registers workers to run once Start is called.
func (o *Orchestrator) Add(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.background = append(o.background, w...)
}

// AddListener registers listeners. They are bound by Start before any worker runs.
func (o *Orchestrator) AddListener(l ...contract.Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l...)
}

// Start binds every listener, hands every worker to the supervisor and
// blocks until they are all stopped. A listener that cannot bind fails
// Start before anything runs.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	if err := o.bind(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.started = true
	supervised := []contract.Worker{workers.NewRoomMonitor(o.log, o.stats, o.registry, o.metricInterval)}
	supervised = append(supervised, o.background...)
	for _, l := range o.listeners {
		supervised = append(supervised, l)
	}
	o.supervisor.Add(supervised...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", len(supervised))
	o.supervisor.Run(ctx)
	return nil
}

// bind listens on every address, releasing those already bound when one fails.
func (o *Orchestrator) bind() error {
	for i, l := range o.listeners {
		if err := l.Listen(); err != nil {
			for _, bound := range o.listeners[:i] {
				_ = bound.Close()
			}
			return err
		}
	}
	return nil
}

// Stop cancels the supervised workers then closes the bus so that no
// subscriber is left waiting on it.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	o.bus.Close()
	o.log.Debug("Bus closed", "subscribers", o.bus.Subscribers())
}
