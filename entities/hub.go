package entities

import (
	"context"
	"sync"
	"time"

	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/pkg/syncx"
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.uber.org/zap"
)

const (
	DefaultRoomName = "game_room"

	reasonIdle    = "idle timeout"
	reasonRemoved = "room removed"
)

type HubConfig struct {
	// DefaultRoom is created up front and never reaped.
	DefaultRoom string
	// IdleTimeout reaps other rooms that stayed empty this long. Zero keeps
	// every room forever.
	IdleTimeout time.Duration
	// StatsInterval logs active rooms and connected clients. Zero disables it.
	StatsInterval time.Duration
	Room          RoomConfig
}

type Hub struct {
	Rooms syncx.Map[string, *Room]

	Context context.Context

	config HubConfig
	// mutex serializes room creation with reaping so a lookup never returns a
	// room that is being reaped.
	mutex sync.Mutex
	done  chan struct{}
}

// NewHub creates a new hub with context for lifecycle management.
// The context controls when the hub and every room should shut down gracefully.
func NewHub(ctx context.Context, config HubConfig) *Hub {
	if config.DefaultRoom == "" {
		config.DefaultRoom = DefaultRoomName
	}

	hub := &Hub{
		Context: ctx,
		config:  config,
		done:    make(chan struct{}),
	}

	hub.GetOrCreate(config.DefaultRoom)

	return hub
}

func (hub *Hub) DefaultRoom() string {
	return hub.config.DefaultRoom
}

// FindRoom returns nil for unknown or closed rooms.
func (hub *Hub) FindRoom(name string) *Room {
	room, exists := hub.Rooms.Load(name)

	if !exists || room.Closed() {
		return nil
	}

	return room
}

// GetOrCreate is the join-or-create lookup. A closed room under the same name
// is replaced by a fresh one.
func (hub *Hub) GetOrCreate(name string) *Room {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if room, exists := hub.Rooms.Load(name); exists && !room.Closed() {
		return room
	}

	return hub.createRoom(name)
}

// createRoom must be called with the mutex held.
func (hub *Hub) createRoom(name string) *Room {
	room := NewRoom(hub.Context, bson.NewObjectID().Hex(), name, hub.config.Room)
	room.Pinned = name == hub.config.DefaultRoom
	hub.Rooms.Store(name, room)
	room.Start()

	return room
}

// RemoveRoom closes a room and forgets it. The pinned default room is reset
// instead: its sessions are closed and an empty replacement opens at once.
func (hub *Hub) RemoveRoom(name string) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	room, exists := hub.Rooms.Load(name)
	if !exists {
		return false
	}

	room.Close(reasonRemoved)
	hub.Rooms.CompareAndDelete(name, room)

	if room.Pinned && hub.Context.Err() == nil {
		hub.createRoom(name)
	}

	return true
}

func (hub *Hub) List() []*Room {
	var rooms []*Room
	hub.Rooms.Range(func(_ string, room *Room) bool {
		if !room.Closed() {
			rooms = append(rooms, room)
		}
		return true
	})
	return rooms
}

func (hub *Hub) Stats() (rooms, clients int) {
	for _, room := range hub.List() {
		rooms++
		clients += room.Clients()
	}
	return rooms, clients
}

// Run reaps idle rooms and logs stats until the context is cancelled, then
// waits for every room to shut down.
func (hub *Hub) Run() {
	defer close(hub.done)

	var reapTicks, statsTicks <-chan time.Time

	if hub.config.IdleTimeout > 0 {
		ticker := time.NewTicker(reapInterval(hub.config.IdleTimeout))
		defer ticker.Stop()
		reapTicks = ticker.C
	}

	if hub.config.StatsInterval > 0 {
		ticker := time.NewTicker(hub.config.StatsInterval)
		defer ticker.Stop()
		statsTicks = ticker.C
	}

	for {
		select {
		case <-hub.Context.Done():
			hub.Rooms.Range(func(_ string, room *Room) bool {
				room.Close(reasonShutdown)
				return true
			})
			hub.Rooms.Range(func(_ string, room *Room) bool {
				room.Wait()
				return true
			})
			return
		case now := <-reapTicks:
			hub.reap(now)
		case <-statsTicks:
			rooms, clients := hub.Stats()
			logx.Logger.Infow(
				"hub stats",
				zap.Int("activeRooms", rooms),
				zap.Int("connectedClients", clients),
			)
		}
	}
}

// Done is closed when Run has returned.
func (hub *Hub) Done() <-chan struct{} {
	return hub.done
}

// reap forgets closed rooms and closes unpinned rooms that have been empty for
// at least IdleTimeout.
func (hub *Hub) reap(now time.Time) []string {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	var reaped []string

	hub.Rooms.Range(func(name string, room *Room) bool {
		if room.Closed() {
			hub.Rooms.CompareAndDelete(name, room)
			return true
		}

		if room.Pinned || hub.config.IdleTimeout <= 0 {
			return true
		}

		if room.IdleFor(now) >= hub.config.IdleTimeout {
			room.Close(reasonIdle)
			hub.Rooms.CompareAndDelete(name, room)
			reaped = append(reaped, name)

			logx.Logger.Infow(
				"room reaped",
				zap.String("roomId", room.Id),
				zap.String("roomName", name),
			)
		}

		return true
	})

	return reaped
}

func reapInterval(idleTimeout time.Duration) time.Duration {
	interval := idleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}
