package shared

import (
	"strings"

	"github.com/AhmedAllam0/icy-tower-online/store"
)

type RoomStatus string

const (
	Waiting   RoomStatus = "waiting"
	Countdown RoomStatus = "countdown"
	Playing   RoomStatus = "playing"
	Finished  RoomStatus = "finished"
)

// Rank orders statuses along the only allowed direction of travel.
func (s RoomStatus) Rank() int {
	switch s {
	case Waiting:
		return 0
	case Countdown:
		return 1
	case Playing:
		return 2
	case Finished:
		return 3
	}
	return -1
}

const (
	MaxPlayers    = 2
	MaxNameLength = 15

	SpawnX = 200
	SpawnY = 500
)

// PlayerState is written only by the player it belongs to.
type PlayerState struct {
	Name         string          `json:"name"`
	Character    int             `json:"character"`
	PlayerNumber int             `json:"playerNumber"`
	Ready        bool            `json:"ready"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	VX           float64         `json:"vx"`
	VY           float64         `json:"vy"`
	Score        int             `json:"score"`
	Floor        int             `json:"floor"`
	IsAlive      bool            `json:"isAlive"`
	LastUpdate   store.Timestamp `json:"lastUpdate"`
}

func NewPlayer(name string, character, number int) PlayerState {
	return PlayerState{
		Name:         TrimName(name),
		Character:    character,
		PlayerNumber: number,
		X:            SpawnX,
		Y:            SpawnY,
		IsAlive:      true,
	}
}

type GameState struct {
	StartTime    *store.Timestamp `json:"startTime"`
	PlatformSeed int64            `json:"platformSeed"`
	Winner       string           `json:"winner,omitempty"`
	WinnerName   string           `json:"winnerName,omitempty"`
}

type Room struct {
	CreatedAt store.Timestamp        `json:"createdAt"`
	Status    RoomStatus             `json:"status"`
	HostID    string                 `json:"hostId"`
	Players   map[string]PlayerState `json:"players"`
	GameState GameState              `json:"gameState"`
}

// MatchmakingEntry advertises a room that still has a free seat.
type MatchmakingEntry struct {
	CreatedAt   store.Timestamp `json:"createdAt"`
	PlayerCount int             `json:"playerCount"`
	HostName    string          `json:"hostName"`
}

// TrimName caps a display name at MaxNameLength runes.
func TrimName(name string) string {
	name = strings.TrimSpace(name)
	r := []rune(name)
	if len(r) > MaxNameLength {
		return string(r[:MaxNameLength])
	}
	return name
}
