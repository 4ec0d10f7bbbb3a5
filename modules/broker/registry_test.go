package broker

import (
	"fmt"
	"sync"
	"testing"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
)

func TestSessionRegistry_AddAndGet(t *testing.T) {
	registry := NewSessionRegistry()

	registry.Add(&relay.Session{ID: "s1", Room: relay.DefaultRoom})

	sess, ok := registry.Get("s1")
	if !ok {
		t.Fatal("Get() session not found after Add()")
	}
	if sess.Room != relay.DefaultRoom {
		t.Errorf("Get() room = %q, want %q", sess.Room, relay.DefaultRoom)
	}
	if registry.RoomSize(relay.DefaultRoom) != 1 {
		t.Errorf("RoomSize() = %d, want 1", registry.RoomSize(relay.DefaultRoom))
	}

	if _, ok := registry.Get("unknown"); ok {
		t.Error("Get() found a session that was never added")
	}
}

func TestSessionRegistry_GetReturnsCopy(t *testing.T) {
	registry := NewSessionRegistry()
	registry.Add(&relay.Session{ID: "s1", Room: relay.DefaultRoom})

	sess, _ := registry.Get("s1")
	sess.Room = "hijacked"

	stored, _ := registry.Get("s1")
	if stored.Room != relay.DefaultRoom {
		t.Errorf("stored room mutated through Get() copy: %q", stored.Room)
	}
}

func TestSessionRegistry_RemoveIdempotent(t *testing.T) {
	registry := NewSessionRegistry()
	registry.Add(&relay.Session{ID: "s1", Room: relay.DefaultRoom})
	registry.Add(&relay.Session{ID: "s2", Room: relay.DefaultRoom})

	sess, removed := registry.Remove("s1")
	if !removed {
		t.Fatal("Remove() first call reported nothing removed")
	}
	if sess.ID != "s1" {
		t.Errorf("Remove() returned session %q, want s1", sess.ID)
	}

	// Second removal is a no-op, membership state unchanged.
	if _, removed := registry.Remove("s1"); removed {
		t.Error("Remove() second call removed something")
	}
	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", registry.Count())
	}
	if registry.RoomSize(relay.DefaultRoom) != 1 {
		t.Errorf("RoomSize() = %d, want 1", registry.RoomSize(relay.DefaultRoom))
	}

	if _, removed := registry.Remove("never-registered"); removed {
		t.Error("Remove() of unknown session removed something")
	}
}

func TestSessionRegistry_RemoveDropsEmptyRoom(t *testing.T) {
	registry := NewSessionRegistry()
	registry.Add(&relay.Session{ID: "s1", Room: "solo"})

	registry.Remove("s1")

	if registry.RoomCount() != 0 {
		t.Errorf("RoomCount() = %d, want 0 after last member left", registry.RoomCount())
	}
}

func TestSessionRegistry_Move(t *testing.T) {
	registry := NewSessionRegistry()
	registry.Add(&relay.Session{ID: "s1", Room: relay.DefaultRoom})

	prevRoom, ok := registry.Move("s1", "ada", "lounge")
	if !ok {
		t.Fatal("Move() failed for a registered session")
	}
	if prevRoom != relay.DefaultRoom {
		t.Errorf("Move() prevRoom = %q, want %q", prevRoom, relay.DefaultRoom)
	}

	sess, _ := registry.Get("s1")
	if sess.User != "ada" || sess.Room != "lounge" {
		t.Errorf("Move() session = %+v, want user ada in room lounge", sess)
	}
	if registry.RoomSize(relay.DefaultRoom) != 0 {
		t.Errorf("old room still has %d members", registry.RoomSize(relay.DefaultRoom))
	}
	if registry.RoomSize("lounge") != 1 {
		t.Errorf("new room has %d members, want 1", registry.RoomSize("lounge"))
	}

	if _, ok := registry.Move("unknown", "x", "y"); ok {
		t.Error("Move() succeeded for an unknown session")
	}
}

func TestSessionRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n)
			registry.Add(&relay.Session{ID: id, Room: relay.DefaultRoom})
			registry.Get(id)
			registry.RoomSize(relay.DefaultRoom)
			registry.Remove(id)
		}(i)
	}
	wg.Wait()

	if registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after all sessions removed", registry.Count())
	}
}
