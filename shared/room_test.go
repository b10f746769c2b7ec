package shared

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStatus_Rank(t *testing.T) {
	order := []RoomStatus{Waiting, Countdown, Playing, Finished}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1].Rank(), order[i].Rank())
	}
	assert.Equal(t, -1, RoomStatus("lobby").Rank())
}

func TestTrimName(t *testing.T) {
	assert.Equal(t, "Player", TrimName("  Player "))
	assert.Equal(t, "abcdefghijklmno", TrimName("abcdefghijklmnopqrstuvwxyz"))
	assert.Len(t, []rune(TrimName(strings.Repeat("ب", 20))), MaxNameLength)
}

func TestRoom_NewRoomMarshalsPlaceholders(t *testing.T) {
	room := Room{
		Status:    Waiting,
		HostID:    "p1",
		Players:   map[string]PlayerState{"p1": NewPlayer("ann", 2, 1)},
		GameState: GameState{PlatformSeed: 42},
	}
	b, err := json.Marshal(room)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, map[string]any{".sv": "timestamp"}, raw["createdAt"])
	gs := raw["gameState"].(map[string]any)
	assert.Nil(t, gs["startTime"])
	assert.NotContains(t, gs, "winner")
}

func TestRoomFromControlChannel(t *testing.T) {
	code, ok := RoomFromControlChannel(ControlChannel("ABC234"))
	assert.True(t, ok)
	assert.Equal(t, "ABC234", code)

	_, ok = RoomFromControlChannel(ServerChannel("ABC234"))
	assert.False(t, ok)
}
