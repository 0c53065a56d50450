package ws

import (
	"budget-chat/contract"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	Path                   = "/chat"
	DefaultShutdownTimeout = 5 * time.Second
)

// Listener serves the room on an HTTP endpoint upgraded to WebSocket.
type Listener struct {
	log             *slog.Logger
	address         string
	handler         contract.ConnectionHandler
	maxLineLength   int
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader

	mu       sync.Mutex
	ln       net.Listener // bound by Listen, handed over to the next Run
	addr     net.Addr
	ready    chan struct{}
	once     sync.Once
	sessions sync.WaitGroup
}

func NewListener(log *slog.Logger, address string, handler contract.ConnectionHandler,
	maxLineLength int, shutdownTimeout time.Duration) *Listener {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Listener{
		log:             log.With("transport", "websocket"),
		address:         address,
		handler:         handler,
		maxLineLength:   maxLineLength,
		shutdownTimeout: shutdownTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// No authentication exists beyond the name, any origin may join.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ready: make(chan struct{}),
	}
}

func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Listen binds the address ahead of Run.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.address, err)
	}
	l.ln = ln
	l.addr = ln.Addr()
	return nil
}

// Close releases a bound address that no Run has taken over yet.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	l.ln = nil
	return err
}

func (l *Listener) take() (net.Listener, error) {
	if err := l.Listen(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ln := l.ln
	l.ln = nil
	return ln, nil
}

func (l *Listener) Run(ctx context.Context) error {
	ln, err := l.take()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, func(w http.ResponseWriter, r *http.Request) {
		l.serveWS(ctx, w, r)
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		l.log.Info("Listening", "address", ln.Addr().String(), "path", Path)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	l.once.Do(func() { close(l.ready) })

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return fmt.Errorf("websocket server error: %w", err)
	}

	// Hijacked connections are not tracked by Shutdown, the sessions
	// close them on their own once ctx is done.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.log.Warn("HTTP shutdown incomplete", "error", err)
	}
	l.wait()
	return nil
}

func (l *Listener) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		l.log.Debug("Upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	l.sessions.Add(1)
	defer l.sessions.Done()
	l.handler.Serve(ctx, NewConn(conn, l.maxLineLength))
}

func (l *Listener) wait() {
	done := make(chan struct{})
	go func() {
		l.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(l.shutdownTimeout):
		l.log.Warn("Shutdown timeout reached, some sessions may still be running")
	}
}
