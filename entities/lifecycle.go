package entities

import (
	"context"
	"errors"
	"time"

	"github.com/amirrezam75/cncrelay/schemas"
)

const lifecycleTimeout = 5 * time.Second

// LifecycleEvent describes a room or membership change for collaborators
// outside the simulation (broker, history store).
type LifecycleEvent struct {
	Type      string
	RoomId    string
	RoomName  string
	CreatedAt time.Time
	At        time.Time
	// Player is set for PlayerJoined and PlayerLeft. PlayerLeft only carries Id.
	Player schemas.PlayerJoinedPayload
	// Reason is set for RoomClosed.
	Reason string
	Tick   uint64
}

// LifecycleObserver is called from a per-room goroutine, never from the
// simulation loop. Errors are logged and otherwise ignored.
type LifecycleObserver interface {
	OnLifecycle(ctx context.Context, event LifecycleEvent) error
}

// Observers fans an event out to every observer.
type Observers []LifecycleObserver

func (observers Observers) OnLifecycle(ctx context.Context, event LifecycleEvent) error {
	var errs []error
	for _, observer := range observers {
		if observer == nil {
			continue
		}
		if err := observer.OnLifecycle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
