package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/AhmedAllam0/icy-tower-online/shared"
	"github.com/AhmedAllam0/icy-tower-online/store"
)

// Session is one client's membership of one room. It is created by
// Client.CreateRoom, JoinRoom or QuickMatch and is done after Leave.
type Session struct {
	client *Client
	store  store.Store

	code   string
	selfID string
	name   string
	host   bool
	number int
	seed   int64

	limiter *rate.Limiter
	events  *broker

	mu       sync.Mutex
	subs     []store.Subscription
	opponent *Opponent
	status   shared.RoomStatus
	started  bool
	ended    bool
	deleted  bool
	left     bool
}

func newSession(c *Client, code, selfID, name string, host bool, number int) *Session {
	return &Session{
		client:  c,
		store:   c.store,
		code:    code,
		selfID:  selfID,
		name:    name,
		host:    host,
		number:  number,
		status:  shared.Waiting,
		limiter: rate.NewLimiter(rate.Every(c.updateInterval), 1),
		events:  newBroker(code, c.eventBuffer),
	}
}

func (s *Session) Code() string        { return s.code }
func (s *Session) SelfID() string      { return s.selfID }
func (s *Session) Name() string        { return s.name }
func (s *Session) IsHost() bool        { return s.host }
func (s *Session) PlayerNumber() int   { return s.number }
func (s *Session) PlatformSeed() int64 { return s.seed }

func (s *Session) Opponent() (Opponent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opponent == nil {
		return Opponent{}, false
	}
	return *s.opponent, true
}

func (s *Session) Status() shared.RoomStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) InRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.left
}

// Events returns a channel of room notifications and a function that stops
// them. The channel is closed on Leave.
func (s *Session) Events() (<-chan Event, func()) {
	return s.events.subscribe()
}

func (s *Session) observe(ctx context.Context) error {
	watches := []struct {
		path string
		fn   func(store.Snapshot)
	}{
		{shared.PlayersPath(s.code), s.onPlayers},
		{shared.StatusPath(s.code), s.onStatus},
		{shared.GameStatePath(s.code), s.onGameState},
	}
	for _, w := range watches {
		sub, err := s.store.Subscribe(ctx, w.path, w.fn)
		if err != nil {
			return unavailable("observe room", err)
		}
		s.mu.Lock()
		if s.left {
			s.mu.Unlock()
			sub.Unsubscribe()
			return fmt.Errorf("observe room: %w", ErrNotInRoom)
		}
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) onPlayers(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return
	}

	if !snap.Exists() {
		if !s.deleted {
			s.deleted = true
			log.Info().Str("room", s.code).Msg("Room deleted")
			s.events.emit(Event{Kind: RoomDeleted})
		}
		return
	}
	var players map[string]shared.PlayerState
	if err := snap.Decode(&players); err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("Error decoding players")
		return
	}

	var evs []Event
	for id, p := range players {
		if id == s.selfID {
			continue
		}
		joined := s.opponent == nil
		s.opponent = &Opponent{ID: id, PlayerState: p}
		evs = append(evs, Event{Kind: OpponentUpdate, Opponent: *s.opponent})
		if joined {
			evs = append(evs, Event{Kind: PlayerJoined, Opponent: *s.opponent})
		}
	}

	forfeit := false
	if _, ok := players[s.selfID]; ok && len(players) == 1 && s.opponent != nil {
		log.Info().Str("room", s.code).Str("opponent", s.opponent.ID).Msg("Opponent left")
		evs = append(evs, Event{Kind: OpponentLeft, Opponent: *s.opponent})
		s.opponent = nil
		forfeit = s.client.claimForfeit && s.status == shared.Playing && !s.ended
	}
	evs = append(evs, Event{Kind: PlayersUpdate, Players: players})
	s.events.emit(evs...)

	if forfeit {
		go func() {
			if err := s.IWon(context.Background()); err != nil {
				log.Warn().Err(err).Str("room", s.code).Msg("Error claiming forfeit win")
			}
		}()
	}
}

func (s *Session) onStatus(snap store.Snapshot) {
	var status shared.RoomStatus
	if err := snap.Decode(&status); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return
	}
	if status.Rank() > s.status.Rank() {
		s.status = status
	}
	log.Debug().Str("room", s.code).Str("status", string(status)).Msg("Room status")
	s.events.emit(Event{Kind: StatusChanged, Status: status})
}

func (s *Session) onGameState(snap store.Snapshot) {
	var gs shared.GameState
	if err := snap.Decode(&gs); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return
	}
	if gs.StartTime != nil && !s.started {
		s.started = true
		s.events.emit(Event{Kind: GameStarted, GameState: gs})
	}
	if gs.Winner != "" && !s.ended {
		s.ended = true
		s.events.emit(Event{Kind: GameEnded, GameState: gs})
	}
}

// SetReady writes the ready flag. When the host becomes ready and both
// players are ready, the countdown starts.
func (s *Session) SetReady(ctx context.Context, ready bool) error {
	if err := s.write(ctx, "players/"+s.selfID+"/ready", ready); err != nil {
		return err
	}
	if !s.host || !ready {
		return nil
	}

	snap, err := s.store.Get(ctx, shared.PlayersPath(s.code))
	if err != nil {
		return unavailable("set ready", err)
	}
	var players map[string]shared.PlayerState
	if snap.Exists() {
		if err := snap.Decode(&players); err != nil {
			return fmt.Errorf("set ready: %w", err)
		}
	}
	if len(players) != shared.MaxPlayers {
		return nil
	}
	for _, p := range players {
		if !p.Ready {
			return nil
		}
	}
	log.Info().Str("room", s.code).Msg("All players ready, starting countdown")
	return s.StartCountdown(ctx)
}

// StartCountdown moves a waiting room to countdown and, after the countdown
// delay, to playing with a server start time. It does nothing once the room
// has left waiting. The second step cannot be cancelled; it is skipped only if
// this session has left by then.
func (s *Session) StartCountdown(ctx context.Context) error {
	if !s.host {
		return fmt.Errorf("start countdown: %w", ErrNotHost)
	}
	ok, err := s.writeIf(ctx, "status", shared.Countdown, statusIs(shared.Waiting))
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("room", s.code).Msg("Room is not waiting, countdown not started")
		return nil
	}

	time.AfterFunc(s.client.countdownDelay, func() {
		if !s.InRoom() {
			return
		}
		ctx := context.Background()
		ok, err := s.writeIf(ctx, "status", shared.Playing, statusIs(shared.Countdown))
		if err != nil {
			log.Error().Err(err).Str("room", s.code).Msg("Error starting game")
			return
		}
		if !ok {
			return
		}
		if _, err := s.writeIf(ctx, "gameState/startTime", store.ServerTimestamp, missing); err != nil {
			log.Error().Err(err).Str("room", s.code).Msg("Error stamping start time")
		}
	})
	return nil
}

// PositionUpdate is the local player's state for one frame.
type PositionUpdate struct {
	X, Y   float64
	VX, VY float64
	Score  float64
	Floor  float64
	Alive  bool
}

// UpdatePosition publishes the local player's state. Calls before the game
// starts or faster than the update interval are dropped without error, as are
// snapshots with impossible velocities or non-finite numbers.
func (s *Session) UpdatePosition(ctx context.Context, u PositionUpdate) error {
	s.mu.Lock()
	active := s.started && !s.left
	s.mu.Unlock()
	if !active {
		return nil
	}
	if !s.limiter.AllowN(s.client.now(), 1) {
		return nil
	}
	if err := s.validate(u); err != nil {
		log.Warn().Err(err).Str("room", s.code).Float64("vx", u.VX).Float64("vy", u.VY).Msg("Invalid position snapshot")
		return nil
	}

	return s.update(ctx, "players/"+s.selfID, map[string]any{
		"x":          math.Round(u.X),
		"y":          math.Round(u.Y),
		"vx":         math.Round(u.VX*100) / 100,
		"vy":         math.Round(u.VY*100) / 100,
		"score":      nonNegative(u.Score),
		"floor":      nonNegative(u.Floor),
		"isAlive":    u.Alive,
		"lastUpdate": store.ServerTimestamp,
	})
}

func (s *Session) validate(u PositionUpdate) error {
	for _, v := range []float64{u.X, u.Y, u.VX, u.VY, u.Score, u.Floor} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrValidationRejected
		}
	}
	limit := s.client.maxSpeed
	if math.Abs(u.VX) > limit || math.Abs(u.VY) > limit*2 {
		return ErrValidationRejected
	}
	return nil
}

func nonNegative(v float64) int {
	return int(math.Max(0, math.Round(v)))
}

// SetWinner records the winner and finishes the room. A second call
// overwrites the first.
func (s *Session) SetWinner(ctx context.Context, winnerID, winnerName string) error {
	err := s.update(ctx, "gameState", map[string]any{
		"winner":     winnerID,
		"winnerName": winnerName,
	})
	if err != nil {
		return err
	}
	if err := s.write(ctx, "status", shared.Finished); err != nil {
		return err
	}
	log.Info().Str("room", s.code).Str("winner", winnerName).Msg("Winner set")
	return nil
}

// PlayerDied marks the local player dead and, if there is an opponent, makes
// them the winner.
func (s *Session) PlayerDied(ctx context.Context) error {
	if err := s.write(ctx, "players/"+s.selfID+"/isAlive", false); err != nil {
		return err
	}
	opp, ok := s.Opponent()
	if !ok {
		return nil
	}
	return s.SetWinner(ctx, opp.ID, opp.Name)
}

func (s *Session) IWon(ctx context.Context) error {
	return s.SetWinner(ctx, s.selfID, s.name)
}

// RoomInfo reads the whole room once.
func (s *Session) RoomInfo(ctx context.Context) (shared.Room, error) {
	if !s.InRoom() {
		return shared.Room{}, fmt.Errorf("room info: %w", ErrNotInRoom)
	}
	snap, err := s.store.Get(ctx, shared.RoomPath(s.code))
	if err != nil {
		return shared.Room{}, unavailable("room info", err)
	}
	if !snap.Exists() {
		return shared.Room{}, fmt.Errorf("room info %s: %w", s.code, ErrRoomNotFound)
	}
	var room shared.Room
	if err := snap.Decode(&room); err != nil {
		return shared.Room{}, fmt.Errorf("room info %s: %w", s.code, err)
	}
	return room, nil
}

// Leave stops observing the room, removes the local player and deletes the
// room if nobody is left. The session is finished afterwards even if the
// store could not be reached; those errors are only logged.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return
	}
	s.left = true
	subs := s.subs
	s.subs = nil
	s.opponent = nil
	s.started = false
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	var result *multierror.Error
	if err := s.store.Remove(ctx, shared.PlayerPath(s.code, s.selfID)); err != nil {
		result = multierror.Append(result, fmt.Errorf("remove player: %w", err))
	} else {
		if _, err := ReapRoom(ctx, s.store, s.code); err != nil {
			result = multierror.Append(result, err)
		}
		if err := s.store.CancelOnDisconnect(ctx, s.selfID); err != nil {
			result = multierror.Append(result, fmt.Errorf("cancel disconnect actions: %w", err))
		}
	}
	if p := s.client.presence; p != nil {
		if err := p.Leave(ctx, s.code); err != nil {
			result = multierror.Append(result, fmt.Errorf("leave presence: %w", err))
		}
	}
	s.events.close()

	if err := result.ErrorOrNil(); err != nil {
		log.Warn().Err(err).Str("room", s.code).Str("client", s.selfID).Msg("Left room with errors")
		return
	}
	log.Info().Str("room", s.code).Str("client", s.selfID).Msg("Left room")
}

// ReapRoom deletes the room and its matchmaking entry when no players are
// left in it. It reports whether the room was deleted.
func ReapRoom(ctx context.Context, st store.Store, code string) (bool, error) {
	snap, err := st.Get(ctx, shared.PlayersPath(code))
	if err != nil {
		return false, fmt.Errorf("reap %s: %w", code, err)
	}
	if snap.Exists() {
		return false, nil
	}

	var result *multierror.Error
	if err := st.Remove(ctx, shared.RoomPath(code)); err != nil {
		result = multierror.Append(result, fmt.Errorf("reap %s: %w", code, err))
	}
	if err := st.Remove(ctx, shared.MatchmakingPath(code)); err != nil {
		result = multierror.Append(result, fmt.Errorf("reap %s matchmaking: %w", code, err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return false, err
	}
	log.Info().Str("room", code).Msg("Empty room deleted")
	return true, nil
}
