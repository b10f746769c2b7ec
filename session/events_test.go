package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "PLAYER_JOINED", PlayerJoined.String())
	assert.Equal(t, "ROOM_DELETED", RoomDeleted.String())
}

func TestBroker_HoldsBacklogForFirstSubscriber(t *testing.T) {
	b := newBroker("ROOM", 4)
	b.emit(Event{Kind: PlayerJoined}, Event{Kind: StatusChanged})

	first, stop := b.subscribe()
	defer stop()
	require.Len(t, first, 2)
	assert.Equal(t, PlayerJoined, (<-first).Kind)
	assert.Equal(t, StatusChanged, (<-first).Kind)

	second, stop2 := b.subscribe()
	defer stop2()
	assert.Len(t, second, 0)

	b.emit(Event{Kind: GameStarted})
	assert.Equal(t, GameStarted, (<-first).Kind)
	assert.Equal(t, GameStarted, (<-second).Kind)
}

func TestBroker_DropsWhenSubscriberIsFull(t *testing.T) {
	b := newBroker("ROOM", 2)
	ch, stop := b.subscribe()
	defer stop()

	for i := 0; i < 5; i++ {
		b.emit(Event{Kind: OpponentUpdate})
	}
	assert.Len(t, ch, 2)
}

func TestBroker_CloseEndsSubscriptions(t *testing.T) {
	b := newBroker("ROOM", 2)
	ch, stop := b.subscribe()
	b.close()

	_, ok := <-ch
	assert.False(t, ok)
	stop()

	b.emit(Event{Kind: GameEnded})
	late, _ := b.subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := newBroker("ROOM", 2)
	ch, stop := b.subscribe()
	stop()
	stop()

	_, ok := <-ch
	assert.False(t, ok)
}
