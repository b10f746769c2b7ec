package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/shared"
)

type EventKind int

const (
	PlayerJoined EventKind = iota
	OpponentUpdate
	OpponentLeft
	PlayersUpdate
	StatusChanged
	GameStarted
	GameEnded
	RoomDeleted
)

func (k EventKind) String() string {
	return [...]string{"PLAYER_JOINED", "OPPONENT_UPDATE", "OPPONENT_LEFT", "PLAYERS_UPDATE", "STATUS_CHANGED", "GAME_STARTED", "GAME_ENDED", "ROOM_DELETED"}[k]
}

// Opponent is the other player's latest record.
type Opponent struct {
	ID string `json:"id"`
	shared.PlayerState
}

// Event is one room notification. Only the fields relevant to Kind are set:
// Opponent for PlayerJoined and OpponentUpdate, Players for PlayersUpdate,
// Status for StatusChanged, GameState for GameStarted and GameEnded.
type Event struct {
	Kind      EventKind
	Opponent  Opponent
	Players   map[string]shared.PlayerState
	Status    shared.RoomStatus
	GameState shared.GameState
}

// broker fans events out to any number of subscribers. Events emitted before
// the first subscriber arrives are held for it, up to the buffer size. A
// subscriber whose buffer is full misses the event.
type broker struct {
	mu      sync.Mutex
	buf     int
	subs    map[int]chan Event
	next    int
	backlog []Event
	flushed bool
	closed  bool
	room    string
}

func newBroker(room string, buf int) *broker {
	return &broker{
		buf:  buf,
		subs: make(map[int]chan Event),
		room: room,
	}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.buf
	if len(b.backlog) > size {
		size = len(b.backlog)
	}
	ch := make(chan Event, size)
	if b.closed {
		for _, ev := range b.backlog {
			ch <- ev
		}
		b.backlog = nil
		close(ch)
		return ch, func() {}
	}
	if !b.flushed {
		for _, ev := range b.backlog {
			ch <- ev
		}
		b.backlog = nil
		b.flushed = true
	}

	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broker) emit(evs ...Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ev := range evs {
		if !b.flushed {
			if len(b.backlog) < b.buf {
				b.backlog = append(b.backlog, ev)
			}
			continue
		}
		for id, ch := range b.subs {
			select {
			case ch <- ev:
			default:
				log.Warn().Str("room", b.room).Int("subscriber", id).Str("event", ev.Kind.String()).Msg("Subscriber is full, dropping event")
			}
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
