package entities

import "github.com/amirrezam75/cncrelay/schemas"

// State is the authoritative game state of one room. Only the room's run
// goroutine may touch it.
type State struct {
	// I used map[] in order to easily remove player and load it in O(1)
	Players map[string]*Player
	Tick    uint64
}

func NewState() *State {
	return &State{Players: make(map[string]*Player)}
}

func (state *State) Snapshot() schemas.StateSnapshot {
	players := make(map[string]schemas.PlayerState, len(state.Players))
	for id, player := range state.Players {
		players[id] = player.State()
	}
	return schemas.StateSnapshot{Tick: state.Tick, Players: players}
}
