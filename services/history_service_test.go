package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/schemas"
)

func TestNewHistoryServiceWithoutURI(t *testing.T) {
	history, err := NewHistoryService(context.Background(), "", "")

	if !errors.Is(err, DependencyUnavailable) {
		t.Fatalf("expected DependencyUnavailable, got %v", err)
	}
	if history != nil {
		t.Fatalf("expected no history service")
	}
}

func TestNewHistoryServiceUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := NewHistoryService(ctx, "mongodb://127.0.0.1:1/?connectTimeoutMS=100", "")

	if !errors.Is(err, DependencyUnavailable) {
		t.Fatalf("expected DependencyUnavailable, got %v", err)
	}
}

func TestNilHistoryServiceIgnoresEvents(t *testing.T) {
	var history *HistoryService

	err := history.OnLifecycle(context.Background(), entities.LifecycleEvent{Type: schemas.EventRoomCreated})
	if err != nil {
		t.Fatalf("expected nil history to ignore events, got %v", err)
	}
	if err := history.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHistoryRecordListsDistinctUsernames(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	endedAt := createdAt.Add(time.Hour)

	record := historyRecord(entities.LifecycleEvent{
		Type:      schemas.EventRoomClosed,
		RoomId:    "room-1",
		RoomName:  "game_room",
		CreatedAt: createdAt,
		At:        endedAt,
		Reason:    "room removed",
		Tick:      72000,
	}, []roomPlayerDocument{
		{Id: "a1", Username: "Alice", Faction: "GDI"},
		{Id: "b1", Username: "Bob", Faction: "NOD"},
		{Id: "a2", Username: "Alice", Faction: "NOD"},
	})

	if record.Id.IsZero() {
		t.Fatalf("expected a generated id")
	}
	if len(record.Players) != 2 || record.Players[0] != "Alice" || record.Players[1] != "Bob" {
		t.Fatalf("unexpected players %v", record.Players)
	}
	if len(record.Participants) != 3 {
		t.Fatalf("expected every session to be recorded, got %d", len(record.Participants))
	}
	if record.Ticks != 72000 || !record.CreatedAt.Equal(createdAt) || !record.EndedAt.Equal(endedAt) {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestRosterCollectsJoinsUntilRoomCloses(t *testing.T) {
	var players roster

	players.join("room-1", roomPlayerDocument{Id: "a1", Username: "Alice"})
	players.join("room-2", roomPlayerDocument{Id: "c1", Username: "Carol"})
	players.join("room-1", roomPlayerDocument{Id: "b1", Username: "Bob"})

	participants := players.take("room-1")
	if len(participants) != 2 || participants[0].Id != "a1" || participants[1].Id != "b1" {
		t.Fatalf("expected Alice then Bob, got %+v", participants)
	}

	if again := players.take("room-1"); len(again) != 0 {
		t.Fatalf("expected a closed room to be forgotten, got %+v", again)
	}
	if _, ok := players.rooms["room-1"]; ok {
		t.Fatalf("expected no roster entry for a closed room")
	}
	if len(players.take("room-2")) != 1 {
		t.Fatalf("expected other rooms to keep their roster")
	}
}

func TestHistoryRecordWithoutParticipants(t *testing.T) {
	record := historyRecord(entities.LifecycleEvent{Type: schemas.EventRoomClosed, RoomId: "room-1"}, nil)

	if record.Players == nil || record.Participants == nil {
		t.Fatalf("expected empty arrays rather than null in the document")
	}
}
