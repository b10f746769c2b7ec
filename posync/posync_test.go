package posync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedAllam0/icy-tower-online/interp"
	"github.com/AhmedAllam0/icy-tower-online/session"
	"github.com/AhmedAllam0/icy-tower-online/shared"
)

type fakeRoom struct {
	events    chan session.Event
	published []session.PositionUpdate
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{events: make(chan session.Event, 8)}
}

func (r *fakeRoom) Events() (<-chan session.Event, func()) {
	return r.events, func() {}
}

func (r *fakeRoom) UpdatePosition(_ context.Context, u session.PositionUpdate) error {
	r.published = append(r.published, u)
	return nil
}

func opponentAt(x, y, vx, vy float64) session.Event {
	return session.Event{
		Kind: session.OpponentUpdate,
		Opponent: session.Opponent{
			ID:          "other",
			PlayerState: shared.PlayerState{X: x, Y: y, VX: vx, VY: vy},
		},
	}
}

func TestSync_FeedsOpponentUpdates(t *testing.T) {
	room := newFakeRoom()
	ip := interp.New()
	s := New(room, ip)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	room.events <- opponentAt(300, 500, 0, 0)
	close(room.events)
	require.NoError(t, <-done)

	p := s.Frame()
	assert.InDelta(t, 200+100*interp.Smoothing, p.X, 1e-9)
	assert.InDelta(t, 500, p.Y, 1e-9)
}

func TestSync_ResetsOnGameStart(t *testing.T) {
	room := newFakeRoom()
	ip := interp.New()
	s := New(room, ip)

	ip.SetTarget(900, 100, 10, 10)
	for i := 0; i < 10; i++ {
		s.Frame()
	}

	room.events <- session.Event{Kind: session.GameStarted}
	close(room.events)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, interp.Point{X: interp.SpawnX, Y: interp.SpawnY}, ip.Current())
}

func TestSync_StopsWithContext(t *testing.T) {
	s := New(newFakeRoom(), interp.New())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}

func TestSync_FrameAdvancesWithoutSnapshots(t *testing.T) {
	ip := interp.New()
	ip.SetTarget(interp.SpawnX, interp.SpawnY, 10, 0)
	s := New(newFakeRoom(), ip)

	a := s.Frame()
	b := s.Frame()
	assert.Greater(t, b.X, a.X)
}

func TestSync_Publish(t *testing.T) {
	room := newFakeRoom()
	s := New(room, interp.New())

	u := session.PositionUpdate{X: 1, Y: 2, Alive: true}
	require.NoError(t, s.Publish(context.Background(), u))
	assert.Equal(t, []session.PositionUpdate{u}, room.published)
}
