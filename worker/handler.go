package worker

import (
	"context"
	"fmt"

	"github.com/ably/ably-go/ably"
	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/session"
	"github.com/AhmedAllam0/icy-tower-online/shared"
	"github.com/AhmedAllam0/icy-tower-online/store"
)

type Announcement int

const (
	ClientLeft Announcement = iota
	RoomClosed
)

func (a Announcement) String() string {
	return [...]string{"CLIENT_LEFT", "ROOM_CLOSED"}[a]
}

// Announcer publishes server messages to a room.
type Announcer interface {
	Announce(ctx context.Context, code, name string, data interface{}) error
}

// Handler cleans up after clients whose presence on a room's control channel
// ended.
type Handler struct {
	store     store.Store
	locker    shared.Locker
	announcer Announcer
}

func NewHandler(st store.Store, locker shared.Locker, announcer Announcer) *Handler {
	return &Handler{store: st, locker: locker, announcer: announcer}
}

// Handle processes one queue payload. Messages it has no use for are
// ignored.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	env, err := unmarshalEnvelope(payload)
	if err != nil {
		return err
	}
	if env.Source != SourcePresence {
		log.Debug().Str("source", env.Source).Str("channel", env.Channel).Msg("Ignoring queue message")
		return nil
	}

	msg, err := unmarshalPresence(payload)
	if err != nil {
		return err
	}
	code, ok := shared.RoomFromControlChannel(msg.Channel)
	if !ok {
		return nil
	}

	var result error
	for _, p := range msg.Presence {
		switch p.Action {
		case int(ably.PresenceActionEnter):
			log.Debug().Str("client", p.ClientId).Str("room", code).Msg("Client entered room")
		case int(ably.PresenceActionLeave):
			if err := h.onLeave(ctx, code, p.ClientId); err != nil {
				result = err
			}
		}
	}
	return result
}

func (h *Handler) onLeave(ctx context.Context, code, clientID string) error {
	log.Info().Str("client", clientID).Str("room", code).Msg("Client left room")

	removed, err := h.store.RunDisconnect(ctx, clientID)
	if err != nil {
		return fmt.Errorf("error running disconnect actions for %s: %w", clientID, err)
	}
	if len(removed) > 0 {
		log.Info().Str("client", clientID).Strs("paths", removed).Msg("Ran disconnect actions")
	}

	unlock, err := h.locker.Lock(ctx, shared.RoomLockName(code))
	if err != nil {
		return err
	}
	deleted, err := session.ReapRoom(ctx, h.store, code)
	unlock()
	if err != nil {
		return err
	}

	if err := h.announcer.Announce(ctx, code, ClientLeft.String(), clientID); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("Error announcing client left")
	}
	if deleted {
		if err := h.announcer.Announce(ctx, code, RoomClosed.String(), code); err != nil {
			log.Warn().Err(err).Str("room", code).Msg("Error announcing room closed")
		}
	}
	return nil
}
