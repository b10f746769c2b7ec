package shared

import "strings"

const WaitingPath = "matchmaking/waiting"

func RoomPath(code string) string      { return "rooms/" + code }
func PlayersPath(code string) string   { return RoomPath(code) + "/players" }
func StatusPath(code string) string    { return RoomPath(code) + "/status" }
func GameStatePath(code string) string { return RoomPath(code) + "/gameState" }

func PlayerPath(code, playerID string) string {
	return PlayersPath(code) + "/" + playerID
}

func MatchmakingPath(code string) string {
	return WaitingPath + "/" + code
}

// Clients enter presence on the control channel of their room; the worker
// announces on the server channel.
func ControlChannel(code string) string { return "control:" + code }
func ServerChannel(code string) string  { return "server:" + code }

func RoomFromControlChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, "control:") {
		return "", false
	}
	return strings.TrimPrefix(channel, "control:"), true
}

func RoomLockName(code string) string {
	return "lockroom:" + code
}
