//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"budget-chat/domain/chat"
	"budget-chat/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// Listener is a Worker serving a network address. Listen binds it before
// supervision starts, so a bad address fails startup instead of being
// retried. Close releases an address that Run never took over.
type Listener interface {
	Worker
	Listen() error
	Close() error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// INameRegistry is the single source of truth for name uniqueness.
type INameRegistry interface {
	TryClaim(name chat.Name) bool
	Release(name chat.Name)
	Snapshot() []chat.Name
	Len() int
}

type IBus interface {
	Publish(e event.Event)
	Subscribe() ISubscription
}

// ISubscription is a private cursor into the bus, owned by one session.
type ISubscription interface {
	Events() <-chan event.Event
	Next(ctx context.Context) (event.Event, error)
	Dropped() uint64
	Close()
}

// LineChannel is a connection seen as a sequence of text lines.
// ReadLine returns io.EOF once the peer is gone.
type LineChannel interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// ConnectionHandler takes ownership of an accepted connection until it ends.
type ConnectionHandler interface {
	Serve(ctx context.Context, conn LineChannel)
}
