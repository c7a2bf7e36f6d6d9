package schemas

import "sort"

// PlayerState is the replicated player record, resources included.
type PlayerState struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Faction  string `json:"faction"`
	Credits  int    `json:"credits"`
	Power    int    `json:"power"`
}

// StateSnapshot is the full room state at one tick. It is sent once when a
// session is admitted; every later tick is a StateDelta against the
// previously broadcast snapshot.
type StateSnapshot struct {
	Tick    uint64                 `json:"tick"`
	Players map[string]PlayerState `json:"players"`
}

// PlayerPatch holds only the fields that changed. A player that is new to the
// receiver gets every field set.
type PlayerPatch struct {
	Username *string `json:"username,omitempty"`
	Faction  *string `json:"faction,omitempty"`
	Credits  *int    `json:"credits,omitempty"`
	Power    *int    `json:"power,omitempty"`
}

func (patch PlayerPatch) IsEmpty() bool {
	return patch.Username == nil && patch.Faction == nil && patch.Credits == nil && patch.Power == nil
}

type StateDelta struct {
	Tick    uint64                 `json:"tick"`
	Changed map[string]PlayerPatch `json:"changed,omitempty"`
	// Removed is sorted.
	Removed []string `json:"removed,omitempty"`
}

func (snapshot StateSnapshot) Clone() StateSnapshot {
	players := make(map[string]PlayerState, len(snapshot.Players))
	for id, player := range snapshot.Players {
		players[id] = player
	}
	return StateSnapshot{Tick: snapshot.Tick, Players: players}
}

// Diff computes the delta that takes prev to next. The result depends only on
// its inputs.
func Diff(prev, next StateSnapshot) StateDelta {
	delta := StateDelta{Tick: next.Tick}

	for id, player := range next.Players {
		old, existed := prev.Players[id]
		var patch PlayerPatch
		if !existed {
			patch = fullPatch(player)
		} else {
			patch = fieldPatch(old, player)
		}
		if patch.IsEmpty() {
			continue
		}
		if delta.Changed == nil {
			delta.Changed = make(map[string]PlayerPatch)
		}
		delta.Changed[id] = patch
	}

	for id := range prev.Players {
		if _, ok := next.Players[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}
	sort.Strings(delta.Removed)

	return delta
}

// Apply is the client-side reducer. It never mutates snapshot.
func Apply(snapshot StateSnapshot, delta StateDelta) StateSnapshot {
	result := snapshot.Clone()
	result.Tick = delta.Tick

	for _, id := range delta.Removed {
		delete(result.Players, id)
	}

	for id, patch := range delta.Changed {
		player, ok := result.Players[id]
		if !ok {
			player = PlayerState{Id: id}
		}
		if patch.Username != nil {
			player.Username = *patch.Username
		}
		if patch.Faction != nil {
			player.Faction = *patch.Faction
		}
		if patch.Credits != nil {
			player.Credits = *patch.Credits
		}
		if patch.Power != nil {
			player.Power = *patch.Power
		}
		result.Players[id] = player
	}

	return result
}

func fullPatch(player PlayerState) PlayerPatch {
	username, faction := player.Username, player.Faction
	credits, power := player.Credits, player.Power
	return PlayerPatch{Username: &username, Faction: &faction, Credits: &credits, Power: &power}
}

func fieldPatch(old, next PlayerState) PlayerPatch {
	var patch PlayerPatch
	if old.Username != next.Username {
		username := next.Username
		patch.Username = &username
	}
	if old.Faction != next.Faction {
		faction := next.Faction
		patch.Faction = &faction
	}
	if old.Credits != next.Credits {
		credits := next.Credits
		patch.Credits = &credits
	}
	if old.Power != next.Power {
		power := next.Power
		patch.Power = &power
	}
	return patch
}
