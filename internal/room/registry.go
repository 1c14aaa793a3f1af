package room

import (
	"sort"
	"sync"
)

// Registry maps room names to rooms. Creation is idempotent and rooms are
// never deleted, so the set of names only grows.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	capacity int
}

// NewRegistry creates an empty registry. Rooms it creates get a fan-out
// channel of the given capacity; values below one fall back to
// DefaultFanoutCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = DefaultFanoutCapacity
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		capacity: capacity,
	}
}

// CreateIfAbsent returns the room with this name, creating it if needed.
// created reports whether this call inserted it.
func (reg *Registry) CreateIfAbsent(name string) (r *Room, created bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.rooms[name]; ok {
		return existing, false
	}
	r = New(name, reg.capacity)
	reg.rooms[name] = r
	return r, true
}

// Get looks up a room by name.
func (reg *Registry) Get(name string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[name]
	return r, ok
}

// Names returns every room name in lexical order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	reg.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
