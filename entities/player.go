package entities

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/amirrezam75/cncrelay/schemas"
)

const (
	StartingCredits = 5000
	StartingPower   = 100
)

type Faction string

const (
	FactionGDI Faction = "GDI"
	FactionNOD Faction = "NOD"
)

var factions = [...]Faction{FactionGDI, FactionNOD}

// ParseFaction accepts any casing of a known faction.
func ParseFaction(value string) (Faction, bool) {
	for _, faction := range factions {
		if strings.EqualFold(value, string(faction)) {
			return faction, true
		}
	}
	return "", false
}

// RandomFaction picks uniformly between the factions.
func RandomFaction() Faction {
	return factions[rand.IntN(len(factions))]
}

type Player struct {
	Id       string
	Username string
	Faction  Faction
	Credits  int
	Power    int
}

func NewPlayer(id, username string, faction Faction) *Player {
	return &Player{
		Id:       id,
		Username: username,
		Faction:  faction,
		Credits:  StartingCredits,
		Power:    StartingPower,
	}
}

func defaultUsername(seat int) string {
	return fmt.Sprintf("Player %d", seat)
}

// Public is the record broadcast in player-joined. Resources stay private.
func (player *Player) Public() schemas.PlayerJoinedPayload {
	return schemas.PlayerJoinedPayload{
		Id:       player.Id,
		Username: player.Username,
		Faction:  string(player.Faction),
	}
}

func (player *Player) State() schemas.PlayerState {
	return schemas.PlayerState{
		Id:       player.Id,
		Username: player.Username,
		Faction:  string(player.Faction),
		Credits:  player.Credits,
		Power:    player.Power,
	}
}
