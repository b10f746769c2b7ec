package session

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("already in room")
	ErrAuthFailure        = errors.New("could not sign in")
	ErrStoreUnavailable   = errors.New("session store unavailable")

	// ErrValidationRejected marks a dropped position snapshot. It is logged,
	// never returned.
	ErrValidationRejected = errors.New("position snapshot rejected")

	ErrNotHost   = errors.New("only the host can do that")
	ErrNotOwner  = errors.New("field belongs to another writer")
	ErrNotInRoom = errors.New("not in a room")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
