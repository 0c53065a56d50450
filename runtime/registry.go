package runtime

import (
	"budget-chat/domain/chat"
	"sync"

	"github.com/samber/lo"
)

type Set map[chat.Name]struct{}

// NameRegistry holds every name currently owned by an active session.
// The mutex is only held for the map operation, never across network I/O.
type NameRegistry struct {
	mu    sync.Mutex
	names Set
}

func NewNameRegistry() *NameRegistry {
	return &NameRegistry{names: make(Set)}
}

// TryClaim inserts name if nobody owns it yet.
// Two concurrent claims of the same name never both succeed.
func (r *NameRegistry) TryClaim(name chat.Name) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		return false
	}
	r.names[name] = struct{}{}
	return true
}

// Release frees name. Releasing an unknown name is a no-op.
func (r *NameRegistry) Release(name chat.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
}

// Snapshot returns a copy of the claimed names in no particular order.
func (r *NameRegistry) Snapshot() []chat.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.names)
}

func (r *NameRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}
