package workers

import (
	"budget-chat/contract"
	"budget-chat/domain/chat"
	"budget-chat/domain/event"
	"budget-chat/errors"
	"budget-chat/observability"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateNaming
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNaming:
		return "naming"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Session drives one connection: welcome, name handshake, then relay
// between the client and the bus until the connection ends.
type Session struct {
	ID       uuid.UUID
	log      *slog.Logger
	conn     contract.LineChannel
	registry contract.INameRegistry
	bus      contract.IBus
	stats    *observability.RoomStats
	state    atomic.Int32
	// name is empty until the handshake succeeds and never changes afterwards.
	name chat.Name
}

func NewSession(log *slog.Logger, conn contract.LineChannel,
	registry contract.INameRegistry, bus contract.IBus, stats *observability.RoomStats) *Session {
	id := uuid.New()
	return &Session{
		ID:       id,
		log:      log.With("session_id", id.String(), "remote_addr", conn.RemoteAddr()),
		conn:     conn,
		registry: registry,
		bus:      bus,
		stats:    stats,
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
	s.log.Debug("Session state changed", "state", state.String())
}

// Run blocks until the client disconnects, a read/write fails, the
// handshake is rejected or ctx is cancelled. A clean end-of-stream
// after the handshake returns nil.
// The connection is always closed on return; if a name was claimed it is
// released and Left is published.
func (s *Session) Run(ctx context.Context) (err error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrSessionPanic, r)
		}
		s.leave()
		_ = s.conn.Close()
		s.setState(StateClosed)
	}()

	s.setState(StateConnecting)
	if err := s.conn.WriteLine(chat.Welcome); err != nil {
		return fmt.Errorf("write welcome: %w", err)
	}

	// Subscribe before reading the name so nothing published between
	// the claim and the relay loop is missed.
	sub := s.bus.Subscribe()
	defer sub.Close()

	s.setState(StateNaming)
	if err := s.handshake(); err != nil {
		return err
	}

	s.setState(StateActive)
	return s.relay(ctx, sub)
}

func (s *Session) handshake() error {
	line, err := s.conn.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.ErrDisconnectedBeforeName
		}
		return fmt.Errorf("read name: %w", err)
	}

	name, err := chat.ParseName(line)
	if err != nil {
		s.stats.Rejected()
		return err
	}
	if !s.registry.TryClaim(name) {
		s.stats.Rejected()
		return fmt.Errorf("%w: %s", errors.ErrNameTaken, name)
	}

	s.name = name
	s.log = s.log.With("name", name.String())
	s.stats.Joined()

	// Join goes out before the snapshot so the listing can never race
	// with our own announcement.
	s.bus.Publish(event.Joined{Name: name, At: time.Now().UTC()})
	presence := chat.PresenceLine(name, s.registry.Snapshot())
	if err := s.conn.WriteLine(presence); err != nil {
		return fmt.Errorf("write presence: %w", err)
	}
	s.log.Info("Participant joined the room")
	return nil
}

// relay serves whichever of the client or the bus is ready first.
func (s *Session) relay(ctx context.Context, sub contract.ISubscription) error {
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go s.readLoop(lines, readErr, done)

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case line := <-lines:
			s.stats.MessagePosted()
			s.bus.Publish(event.TextPosted{Name: s.name, Body: line, At: time.Now().UTC()})

		case err := <-readErr:
			// A cancelled context closes the connection under the reader.
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read line: %w", err)

		case evt, ok := <-events:
			if !ok {
				return errors.ErrSubscriptionClosed
			}
			if evt.Author() == s.name {
				continue
			}
			if err := s.conn.WriteLine(evt.Line()); err != nil {
				return fmt.Errorf("write %s: %w", evt.Type(), err)
			}
		}
	}
}

// readLoop is the only reader of the connection once the handshake is over.
// Lines are handed over unbuffered so they are published in arrival order,
// before any later read error.
func (s *Session) readLoop(lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case lines <- line:
		case <-done:
			return
		}
	}
}

func (s *Session) leave() {
	if s.name == "" {
		return
	}
	s.bus.Publish(event.Left{Name: s.name, At: time.Now().UTC()})
	s.registry.Release(s.name)
	s.log.Info("Participant left the room")
}
