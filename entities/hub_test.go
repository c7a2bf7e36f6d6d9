package entities

import (
	"context"
	"testing"
	"time"
)

func newTestHub(t *testing.T, config HubConfig) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, config)
}

func TestHubCreatesPinnedDefaultRoom(t *testing.T) {
	hub := newTestHub(t, HubConfig{})

	room := hub.FindRoom(DefaultRoomName)
	if room == nil {
		t.Fatalf("expected default room %q to exist", DefaultRoomName)
	}
	if !room.Pinned {
		t.Fatalf("expected default room to be pinned")
	}
	if hub.GetOrCreate(DefaultRoomName) != room {
		t.Fatalf("expected GetOrCreate to return the existing room")
	}
}

func TestHubReapsIdleRoomsOnly(t *testing.T) {
	hub := newTestHub(t, HubConfig{IdleTimeout: time.Minute})

	skirmish := hub.GetOrCreate("skirmish")

	if reaped := hub.reap(time.Now()); len(reaped) != 0 {
		t.Fatalf("expected nothing reaped before the timeout, got %v", reaped)
	}

	reaped := hub.reap(time.Now().Add(2 * time.Minute))
	if len(reaped) != 1 || reaped[0] != "skirmish" {
		t.Fatalf("expected skirmish to be reaped, got %v", reaped)
	}

	skirmish.Wait()
	if hub.FindRoom("skirmish") != nil {
		t.Fatalf("expected reaped room to be gone")
	}
	if hub.FindRoom(DefaultRoomName) == nil {
		t.Fatalf("expected pinned room to survive reaping")
	}
}

func TestHubKeepsOccupiedRooms(t *testing.T) {
	hub := newTestHub(t, HubConfig{IdleTimeout: time.Minute})

	room := hub.GetOrCreate("skirmish")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := room.Admit(ctx, Candidate{Username: "Alice"}); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if reaped := hub.reap(time.Now().Add(time.Hour)); len(reaped) != 0 {
		t.Fatalf("expected occupied room to stay, got %v", reaped)
	}
}

func TestHubReplacesClosedRoom(t *testing.T) {
	hub := newTestHub(t, HubConfig{})

	first := hub.GetOrCreate("skirmish")
	first.Close("test")
	first.Wait()

	second := hub.GetOrCreate("skirmish")
	if second == first {
		t.Fatalf("expected a fresh room after the old one closed")
	}
	if second.Id == first.Id {
		t.Fatalf("expected a new room id")
	}
}

func TestHubRemoveRoom(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	hub.GetOrCreate("skirmish")

	if !hub.RemoveRoom("skirmish") {
		t.Fatalf("expected skirmish to be removed")
	}
	if hub.RemoveRoom("skirmish") {
		t.Fatalf("expected second removal to report a missing room")
	}

	rooms, _ := hub.Stats()
	if rooms != 1 {
		t.Fatalf("expected only the default room, got %d rooms", rooms)
	}
}

func TestHubRemoveRoomReopensDefaultRoom(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	old := hub.FindRoom(DefaultRoomName)

	if !hub.RemoveRoom(DefaultRoomName) {
		t.Fatalf("expected the default room to be removed")
	}
	old.Wait()

	fresh := hub.FindRoom(DefaultRoomName)
	if fresh == nil || fresh == old {
		t.Fatalf("expected a fresh default room right after removal")
	}
	if !fresh.Pinned {
		t.Fatalf("expected the replacement to be pinned")
	}
	if !old.Closed() {
		t.Fatalf("expected the removed room to be closed")
	}
}

func TestHubRunClosesRoomsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx, HubConfig{IdleTimeout: time.Minute, StatsInterval: time.Minute})
	room := hub.GetOrCreate("skirmish")

	go hub.Run()
	cancel()

	select {
	case <-hub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected hub to stop")
	}

	if !room.Closed() {
		t.Fatalf("expected rooms to be closed on shutdown")
	}
}

func TestReapInterval(t *testing.T) {
	if interval := reapInterval(10 * time.Minute); interval != time.Minute {
		t.Fatalf("expected a one minute cap, got %s", interval)
	}
	if interval := reapInterval(time.Millisecond); interval != 10*time.Millisecond {
		t.Fatalf("expected a 10ms floor, got %s", interval)
	}
}
