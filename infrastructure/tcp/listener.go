// Package tcp accepts raw TCP connections and hands each of them, framed
// as lines, to the room.
package tcp

import (
	"budget-chat/contract"
	"budget-chat/infrastructure/line"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	acceptBackoff          = 50 * time.Millisecond
	DefaultShutdownTimeout = 5 * time.Second
)

type Listener struct {
	log             *slog.Logger
	address         string
	handler         contract.ConnectionHandler
	maxLineLength   int
	shutdownTimeout time.Duration

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
		log:             log.With("transport", "tcp"),
		address:         address,
		handler:         handler,
		maxLineLength:   maxLineLength,
		shutdownTimeout: shutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr is the bound address, nil before Ready.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Listen binds the address so that startup fails on a bad address
// instead of the supervisor retrying it.
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

// take hands the bound listener to Run, binding again after a restart.
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

// Run accepts connections until ctx is cancelled, then waits for the
// running sessions up to the shutdown timeout.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := l.take()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	l.once.Do(func() { close(l.ready) })
	l.log.Info("Listening", "address", ln.Addr().String())

	// Sessions outlive a Run that failed on accept. They are awaited
	// on shutdown whichever Run accepted them.
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.wait()
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				l.log.Warn("Temporary accept error", "error", err)
				time.Sleep(acceptBackoff)
				continue
			}
			_ = ln.Close()
			return fmt.Errorf("accept: %w", err)
		}

		l.log.Debug("Connection accepted", "remote_addr", conn.RemoteAddr().String())
		l.sessions.Add(1)
		go func() {
			defer l.sessions.Done()
			l.handler.Serve(ctx, line.NewConn(conn, l.maxLineLength))
		}()
	}
}

func (l *Listener) wait() {
	done := make(chan struct{})
	go func() {
		l.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.log.Info("All sessions closed")
	case <-time.After(l.shutdownTimeout):
		l.log.Warn("Shutdown timeout reached, some sessions may still be running")
	}
}
