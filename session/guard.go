package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AhmedAllam0/icy-tower-online/shared"
	"github.com/AhmedAllam0/icy-tower-online/store"
)

var errPrecondition = errors.New("precondition failed")

// authorize checks a write to a path relative to the room against the field
// owners: a player's subtree belongs to that player, the start of the game
// belongs to the host, and the end of the game to any member.
func (s *Session) authorize(rel string, v any) error {
	segs := strings.Split(rel, "/")
	switch {
	case segs[0] == "players":
		if len(segs) < 2 || segs[1] != s.selfID {
			return fmt.Errorf("write %s: %w", rel, ErrNotOwner)
		}
		return nil

	case rel == "status":
		status, ok := v.(shared.RoomStatus)
		if !ok {
			return fmt.Errorf("write %s: %w", rel, ErrNotOwner)
		}
		if status == shared.Finished {
			return nil
		}
		if !s.host {
			return fmt.Errorf("write %s=%s: %w", rel, status, ErrNotHost)
		}
		return nil

	case rel == "gameState/startTime":
		if !s.host {
			return fmt.Errorf("write %s: %w", rel, ErrNotHost)
		}
		return nil

	case rel == "gameState/winner", rel == "gameState/winnerName":
		return nil
	}
	return fmt.Errorf("write %s: %w", rel, ErrNotOwner)
}

func (s *Session) write(ctx context.Context, rel string, v any) error {
	if !s.InRoom() {
		return fmt.Errorf("write %s: %w", rel, ErrNotInRoom)
	}
	if err := s.authorize(rel, v); err != nil {
		return err
	}
	if err := s.store.Set(ctx, shared.RoomPath(s.code)+"/"+rel, v); err != nil {
		return unavailable("write "+rel, err)
	}
	return nil
}

func (s *Session) update(ctx context.Context, rel string, fields map[string]any) error {
	if !s.InRoom() {
		return fmt.Errorf("update %s: %w", rel, ErrNotInRoom)
	}
	for k, v := range fields {
		if err := s.authorize(rel+"/"+k, v); err != nil {
			return err
		}
	}
	if err := s.store.Update(ctx, shared.RoomPath(s.code)+"/"+rel, fields); err != nil {
		return unavailable("update "+rel, err)
	}
	return nil
}

// writeIf writes v to rel only while ok accepts the current value there. It
// reports whether the write happened.
func (s *Session) writeIf(ctx context.Context, rel string, v any, ok func(store.Snapshot) bool) (bool, error) {
	if !s.InRoom() {
		return false, fmt.Errorf("write %s: %w", rel, ErrNotInRoom)
	}
	if err := s.authorize(rel, v); err != nil {
		return false, err
	}
	err := s.store.Transact(ctx, shared.RoomPath(s.code)+"/"+rel, func(cur store.Snapshot) (any, error) {
		if !ok(cur) {
			return nil, errPrecondition
		}
		return v, nil
	})
	if errors.Is(err, errPrecondition) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("write "+rel, err)
	}
	return true, nil
}

func statusIs(want shared.RoomStatus) func(store.Snapshot) bool {
	return func(cur store.Snapshot) bool {
		var status shared.RoomStatus
		return cur.Decode(&status) == nil && status == want
	}
}

func missing(cur store.Snapshot) bool {
	return !cur.Exists()
}
