// Package posync connects a room session to the opponent interpolator: remote
// snapshots go in as targets, the render loop pulls one estimate per frame.
package posync

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/interp"
	"github.com/AhmedAllam0/icy-tower-online/session"
)

// Room is the part of a session the sync needs.
type Room interface {
	Events() (<-chan session.Event, func())
	UpdatePosition(ctx context.Context, u session.PositionUpdate) error
}

var _ Room = (*session.Session)(nil)

type Sync struct {
	room   Room
	interp *interp.Interpolator
}

func New(room Room, ip *interp.Interpolator) *Sync {
	return &Sync{room: room, interp: ip}
}

// Run feeds room events into the interpolator until ctx is done or the room
// is left.
func (s *Sync) Run(ctx context.Context) error {
	events, stop := s.room.Events()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ev)
		}
	}
}

func (s *Sync) handle(ev session.Event) {
	switch ev.Kind {
	case session.OpponentUpdate:
		o := ev.Opponent
		s.interp.SetTarget(o.X, o.Y, o.VX, o.VY)
	case session.GameStarted:
		log.Debug().Msg("Game started, resetting opponent position")
		s.interp.Reset()
	}
}

// Frame advances the opponent estimate by one frame. Call it once per frame
// whether or not a snapshot arrived.
func (s *Sync) Frame() interp.Point {
	return s.interp.Update()
}

// Publish sends the local player's state for this frame. The session drops
// calls above its update rate.
func (s *Sync) Publish(ctx context.Context, u session.PositionUpdate) error {
	return s.room.UpdatePosition(ctx, u)
}
