package main

import (
	"budget-chat/infrastructure/tcp"
	"budget-chat/infrastructure/ws"
	"budget-chat/internal"
	"budget-chat/observability"
	"budget-chat/runtime"
	"budget-chat/runtime/workers"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "budgetchat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives.
// Returning instead of exiting lets the deferred cleanups run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Shared room state
	stats := observability.NewRoomStats()
	registry := runtime.NewNameRegistry()
	bus := runtime.NewBus(log, config.BusCapacity, stats)
	supervisor := workers.NewSupervisor(log, stats, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, registry, bus, stats, config.MetricInterval)

	// 3. Transports, all feeding the same room. They are bound by Start.
	orchestrator.AddListener(tcp.NewListener(log, config.Address(), orchestrator.Room(),
		config.MaxLineLength, config.ShutdownTimeout))
	if address := config.WSAddress(); address != "" {
		orchestrator.AddListener(ws.NewListener(log, address, orchestrator.Room(),
			config.MaxLineLength, config.ShutdownTimeout))
	}
	if address := config.DebugAddress(); address != "" {
		orchestrator.AddListener(internal.NewDebugServer(log, address, orchestrator.Stats(), registry))
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Run until the signal, then drain
	log.Info("Starting budgetchat", "address", config.Address(),
		"ws_address", config.WSAddress(), "bus_capacity", config.BusCapacity)
	if err := orchestrator.Start(ctx); err != nil {
		return exitRuntime, fmt.Errorf("orchestrator failed to start: %w", err)
	}
	orchestrator.Stop()

	snapshot := orchestrator.Stats().Snapshot()
	log.Info("Program stopped cleanly", "joins", snapshot.Joins, "messages", snapshot.Messages)
	return exitOK, nil
}
