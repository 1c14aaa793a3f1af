package room_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/room"
)

// TestRoomPublishAppendsHistory verifies that history only grows and keeps publish order.
func TestRoomPublishAppendsHistory(t *testing.T) {
	r := room.New("lobby", room.DefaultFanoutCapacity)

	if got := r.History(); len(got) != 0 {
		t.Fatalf("Expected empty history, got %v", got)
	}

	r.Publish("alice: hi")
	r.Publish("bob: hey")

	want := []string{"alice: hi", "bob: hey"}
	if got := r.History(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected history %v, got %v", want, got)
	}
	if r.Len() != 2 {
		t.Errorf("Expected Len 2, got %d", r.Len())
	}
}

// TestRoomHistoryIsACopy verifies callers cannot mutate the stored history.
func TestRoomHistoryIsACopy(t *testing.T) {
	r := room.New("lobby", room.DefaultFanoutCapacity)
	r.Publish("alice: hi")

	h := r.History()
	h[0] = "tampered"

	if got := r.History()[0]; got != "alice: hi" {
		t.Errorf("History was mutated through a returned slice: %q", got)
	}
}

// TestRoomJoinSplitsHistoryAndLive verifies that a join sees old messages as history
// and newer ones on the subscription, with nothing duplicated.
func TestRoomJoinSplitsHistoryAndLive(t *testing.T) {
	r := room.New("lobby", room.DefaultFanoutCapacity)
	r.Publish("old")

	history, rx := r.Join()
	defer rx.Close()
	r.Publish("new")

	if !reflect.DeepEqual(history, []string{"old"}) {
		t.Errorf("Expected history [old], got %v", history)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := rx.Recv(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "new" {
		t.Errorf("Expected live message %q, got %q", "new", got)
	}
	if r.Subscribers() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", r.Subscribers())
	}
}

// TestRoomConcurrentPublishOrder verifies that history order equals delivery order
// even with many concurrent publishers.
func TestRoomConcurrentPublishOrder(t *testing.T) {
	const publishers, each = 8, 20
	r := room.New("busy", publishers*each)
	rx := r.Subscribe()
	defer rx.Close()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				r.Publish(fmt.Sprintf("user%d: %d", id, i))
			}
		}(p)
	}
	wg.Wait()

	history := r.History()
	if len(history) != publishers*each {
		t.Fatalf("Expected %d messages, got %d", publishers*each, len(history))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i, want := range history {
		got, err := rx.Recv(ctx)
		if err != nil {
			t.Fatalf("Unexpected error at %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("Delivery order diverged from history at %d: %q vs %q", i, got, want)
		}
	}
}

// TestRoomIsolation verifies that messages never cross rooms.
func TestRoomIsolation(t *testing.T) {
	a := room.New("a", room.DefaultFanoutCapacity)
	b := room.New("b", room.DefaultFanoutCapacity)
	rxB := b.Subscribe()
	defer rxB.Close()

	a.Publish("only for a")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if got, err := rxB.Recv(ctx); err == nil {
		t.Errorf("Room b received a message from room a: %q", got)
	}
	if b.Len() != 0 {
		t.Errorf("Room b history should be empty, got %d entries", b.Len())
	}
}
