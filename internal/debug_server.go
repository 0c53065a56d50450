package internal

import (
	"budget-chat/contract"
	"budget-chat/domain/chat"
	"budget-chat/observability"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

//go:embed inspect.html
var templatesFS embed.FS

type PageData struct {
	Names  []string
	Stats  observability.RoomStatsSnapshot
	Uptime string
}

// DebugServer exposes the room state over HTTP, read only.
// /inspect renders an HTML page, /stats returns the counters as JSON.
type DebugServer struct {
	log      *slog.Logger
	address  string
	stats    *observability.RoomStats
	registry contract.INameRegistry
	tmpl     *template.Template

	mu    sync.Mutex
	ln    net.Listener // bound by Listen, handed over to the next Run
	addr  net.Addr
	ready chan struct{}
	once  sync.Once
}

func NewDebugServer(log *slog.Logger, address string, stats *observability.RoomStats, registry contract.INameRegistry) *DebugServer {
	return &DebugServer{
		log:      log.With("component", "debug_server"),
		address:  address,
		stats:    stats,
		registry: registry,
		tmpl:     template.Must(template.ParseFS(templatesFS, "inspect.html")),
		ready:    make(chan struct{}),
	}
}

func (d *DebugServer) Ready() <-chan struct{} {
	return d.ready
}

func (d *DebugServer) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		snapshot := d.stats.Snapshot()
		data := PageData{
			Names:  d.names(),
			Stats:  snapshot,
			Uptime: time.Since(snapshot.StartedAt).Truncate(time.Second).String(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := d.tmpl.Execute(w, data); err != nil {
			d.log.Warn("Failed to render inspect page", "error", err)
		}
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			observability.RoomStatsSnapshot
			Names []string `json:"names"`
		}{d.stats.Snapshot(), d.names()})
	})
	return mux
}

func (d *DebugServer) names() []string {
	names := lo.Map(d.registry.Snapshot(), func(n chat.Name, _ int) string { return n.String() })
	sort.Strings(names)
	return names
}

// Listen binds the address ahead of Run.
func (d *DebugServer) Listen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", d.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.address, err)
	}
	d.ln = ln
	d.addr = ln.Addr()
	return nil
}

// Close releases a bound address that no Run has taken over yet.
func (d *DebugServer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	err := d.ln.Close()
	d.ln = nil
	return err
}

func (d *DebugServer) Run(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}
	d.mu.Lock()
	ln := d.ln
	d.ln = nil
	d.mu.Unlock()

	server := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errChan := make(chan error, 1)
	go func() {
		url := fmt.Sprintf("http://%s/inspect", ln.Addr().String())
		d.log.Info("Debug inspector available", "url", url)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	d.once.Do(func() { close(d.ready) })

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errChan:
		return fmt.Errorf("debug server error: %w", err)
	}
}
