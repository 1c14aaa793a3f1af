// Package room holds chat rooms and the registry that names them.
//
// A Room keeps an append-only history and a fan-out channel. Publishing
// appends to the history and sends on the channel under the same lock, so the
// history order and the live delivery order are always the same sequence.
package room

import (
	"sync"

	"github.com/Tyrowin/roomchat/internal/broadcast"
)

// DefaultFanoutCapacity is how many messages a subscriber may fall behind
// before it starts skipping.
const DefaultFanoutCapacity = 10

// Room is a named chat room. Rooms are never removed.
type Room struct {
	name    string
	mu      sync.Mutex
	history []string
	fanout  *broadcast.Channel[string]
}

// New creates an empty room whose fan-out channel retains capacity messages.
func New(name string, capacity int) *Room {
	return &Room{
		name:   name,
		fanout: broadcast.New[string](capacity),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Publish appends text to the history and fans it out to current subscribers.
// It never blocks on slow subscribers.
func (r *Room) Publish(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, text)
	r.fanout.Send(text)
}

// Subscribe returns a receiver for messages published from now on.
func (r *Room) Subscribe() *broadcast.Receiver[string] {
	return r.fanout.Subscribe()
}

// History returns a copy of every message published so far, oldest first.
func (r *Room) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.history...)
}

// Join snapshots the history and subscribes in one step. Every message is
// either in the returned history or delivered on the receiver, never both.
func (r *Room) Join() ([]string, *broadcast.Receiver[string]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.history...), r.fanout.Subscribe()
}

// Len returns the number of messages in the history.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.history)
}

// Subscribers returns the number of attached receivers.
func (r *Room) Subscribers() int {
	return r.fanout.ReceiverCount()
}
