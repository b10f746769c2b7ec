// Package session runs the two-player room lifecycle on top of a shared
// store: creating, joining and matching rooms, readiness and countdown,
// position publishing and the end of the game.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/shared"
	"github.com/AhmedAllam0/icy-tower-online/store"
)

const (
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	CodeLength   = 6

	DefaultCountdownDelay = 3 * time.Second
	DefaultUpdateInterval = 100 * time.Millisecond
	DefaultMaxSpeed       = 50
	DefaultEventBuffer    = 64

	maxSeed = 1_000_000
)

// GenerateRoomCode returns a random room code. It is not meant to be
// unguessable.
func GenerateRoomCode() string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = CodeAlphabet[rand.Intn(len(CodeAlphabet))]
	}
	return string(b)
}

// NormalizeCode accepts codes typed in any case with surrounding spaces.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Identity issues the peer id used as this client's player key.
type Identity interface {
	SignInAnonymously(ctx context.Context) (string, error)
}

// Presence tells the backend which room this client is connected to, so it can
// clean up after a dropped connection.
type Presence interface {
	Enter(ctx context.Context, code string) error
	Leave(ctx context.Context, code string) error
}

// Connectivity is implemented by presences that can report the connection
// state.
type Connectivity interface {
	Connectivity() <-chan bool
}

type Option func(*Client)

func WithPresence(p Presence) Option {
	return func(c *Client) { c.presence = p }
}

func WithCountdownDelay(d time.Duration) Option {
	return func(c *Client) { c.countdownDelay = d }
}

func WithUpdateInterval(d time.Duration) Option {
	return func(c *Client) { c.updateInterval = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithCodeGenerator(gen func() string) Option {
	return func(c *Client) { c.newCode = gen }
}

func WithSeedGenerator(gen func() int64) Option {
	return func(c *Client) { c.newSeed = gen }
}

func WithEventBuffer(n int) Option {
	return func(c *Client) { c.eventBuffer = n }
}

// WithForfeitClaim makes a session declare itself the winner when the
// opponent leaves mid-game.
func WithForfeitClaim() Option {
	return func(c *Client) { c.claimForfeit = true }
}

// Client is one peer's entry point. It holds no room state; every room it
// creates or joins gets its own Session.
type Client struct {
	store    store.Store
	identity Identity
	presence Presence

	countdownDelay time.Duration
	updateInterval time.Duration
	maxSpeed       float64
	eventBuffer    int
	claimForfeit   bool
	now            func() time.Time
	newCode        func() string
	newSeed        func() int64

	mu     sync.Mutex
	selfID string
}

func NewClient(st store.Store, identity Identity, opts ...Option) *Client {
	c := &Client{
		store:          st,
		identity:       identity,
		countdownDelay: DefaultCountdownDelay,
		updateInterval: DefaultUpdateInterval,
		maxSpeed:       DefaultMaxSpeed,
		eventBuffer:    DefaultEventBuffer,
		now:            time.Now,
		newCode:        GenerateRoomCode,
		newSeed:        func() int64 { return rand.Int63n(maxSeed) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelfID signs in if needed and returns this client's peer id.
func (c *Client) SelfID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selfID != "" {
		return c.selfID, nil
	}
	id, err := c.identity.SignInAnonymously(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty identity", ErrAuthFailure)
	}
	c.selfID = id
	return id, nil
}

// Connectivity streams the connection state when the presence supports it.
func (c *Client) Connectivity() (<-chan bool, bool) {
	conn, ok := c.presence.(Connectivity)
	if !ok {
		return nil, false
	}
	return conn.Connectivity(), true
}

// CreateRoom opens a new room with this client as host and player 1.
func (c *Client) CreateRoom(ctx context.Context, name string, character int) (*Session, error) {
	self, err := c.SelfID(ctx)
	if err != nil {
		return nil, err
	}
	name = shared.TrimName(name)

	var code string
	for {
		code = c.newCode()
		snap, err := c.store.Get(ctx, shared.RoomPath(code))
		if err != nil {
			return nil, unavailable("create room", err)
		}
		if !snap.Exists() {
			break
		}
		log.Info().Str("room", code).Msg("Collision on room code, regenerating")
	}

	room := shared.Room{
		Status: shared.Waiting,
		HostID: self,
		Players: map[string]shared.PlayerState{
			self: shared.NewPlayer(name, character, 1),
		},
		GameState: shared.GameState{PlatformSeed: c.newSeed()},
	}
	if err := c.store.Set(ctx, shared.RoomPath(code), room); err != nil {
		return nil, unavailable("create room", err)
	}

	s := newSession(c, code, self, name, true, 1)
	s.seed = room.GameState.PlatformSeed
	err = c.setupHost(ctx, s)
	if err == nil {
		err = s.observe(ctx)
	}
	if err != nil {
		s.Leave(ctx)
		return nil, err
	}

	log.Info().Str("room", code).Str("client", self).Msg("Room created")
	return s, nil
}

func (c *Client) setupHost(ctx context.Context, s *Session) error {
	entry := shared.MatchmakingEntry{PlayerCount: 1, HostName: s.name}
	if err := c.store.Set(ctx, shared.MatchmakingPath(s.code), entry); err != nil {
		return unavailable("create room", err)
	}
	if err := c.store.OnDisconnectRemove(ctx, s.selfID, shared.PlayerPath(s.code, s.selfID)); err != nil {
		return unavailable("create room", err)
	}
	if err := c.store.OnDisconnectRemove(ctx, s.selfID, shared.MatchmakingPath(s.code)); err != nil {
		return unavailable("create room", err)
	}
	c.enterPresence(ctx, s.code)
	return nil
}

// JoinRoom takes the free seat of a waiting room.
func (c *Client) JoinRoom(ctx context.Context, code, name string, character int) (*Session, error) {
	self, err := c.SelfID(ctx)
	if err != nil {
		return nil, err
	}
	code = NormalizeCode(code)
	name = shared.TrimName(name)

	snap, err := c.store.Get(ctx, shared.RoomPath(code))
	if err != nil {
		return nil, unavailable("join room", err)
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("join %s: %w", code, ErrRoomNotFound)
	}
	var room shared.Room
	if err := snap.Decode(&room); err != nil {
		return nil, fmt.Errorf("join %s: %w", code, err)
	}
	if room.Status != shared.Waiting {
		return nil, fmt.Errorf("join %s: %w", code, ErrGameAlreadyStarted)
	}
	if len(room.Players) >= shared.MaxPlayers {
		return nil, fmt.Errorf("join %s: %w", code, ErrRoomFull)
	}
	if _, ok := room.Players[self]; ok {
		return nil, fmt.Errorf("join %s: %w", code, ErrAlreadyInRoom)
	}

	number, err := c.claimSeat(ctx, code, self, name, character)
	if err != nil {
		return nil, err
	}

	s := newSession(c, code, self, name, room.HostID == self, number)
	s.seed = room.GameState.PlatformSeed

	err = c.setupGuest(ctx, s)
	if err == nil {
		err = s.observe(ctx)
	}
	if err != nil {
		s.Leave(ctx)
		return nil, err
	}

	log.Info().Str("room", code).Str("client", self).Msg("Joined room")
	return s, nil
}

// claimSeat adds self to the room's players if a seat is still free when the
// write lands, so two joiners racing for one seat cannot both get it.
func (c *Client) claimSeat(ctx context.Context, code, self, name string, character int) (int, error) {
	number := 0
	err := c.store.Transact(ctx, shared.PlayersPath(code), func(cur store.Snapshot) (any, error) {
		var players map[string]json.RawMessage
		if err := cur.Decode(&players); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrRoomNotFound
			}
			return nil, err
		}
		if len(players) >= shared.MaxPlayers {
			return nil, ErrRoomFull
		}
		if _, ok := players[self]; ok {
			return nil, ErrAlreadyInRoom
		}

		number = 2
		for _, raw := range players {
			var p struct {
				PlayerNumber int `json:"playerNumber"`
			}
			if err := json.Unmarshal(raw, &p); err == nil && p.PlayerNumber == 2 {
				number = 1
			}
		}
		b, err := json.Marshal(shared.NewPlayer(name, character, number))
		if err != nil {
			return nil, err
		}
		players[self] = b
		return players, nil
	})
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrRoomFull), errors.Is(err, ErrAlreadyInRoom):
		return 0, fmt.Errorf("join %s: %w", code, err)
	case err != nil:
		return 0, unavailable("join room", err)
	}
	return number, nil
}

func (c *Client) setupGuest(ctx context.Context, s *Session) error {
	// The room is full now and must stop showing up in quick match.
	if err := c.store.Remove(ctx, shared.MatchmakingPath(s.code)); err != nil {
		return unavailable("join room", err)
	}
	if err := c.store.OnDisconnectRemove(ctx, s.selfID, shared.PlayerPath(s.code, s.selfID)); err != nil {
		return unavailable("join room", err)
	}
	c.enterPresence(ctx, s.code)
	return nil
}

func (c *Client) enterPresence(ctx context.Context, code string) {
	if c.presence == nil {
		return
	}
	if err := c.presence.Enter(ctx, code); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("Error entering presence, disconnect cleanup will not run")
	}
}

type MatchAction string

const (
	Joined  MatchAction = "joined"
	Created MatchAction = "created"
)

type MatchResult struct {
	Action   MatchAction
	RoomCode string
}

// QuickMatch joins the first room waiting for a second player, or creates one.
// There is no lock: if the room is taken between the lookup and the join, a
// new room is created instead.
func (c *Client) QuickMatch(ctx context.Context, name string, character int) (*Session, MatchResult, error) {
	if _, err := c.SelfID(ctx); err != nil {
		return nil, MatchResult{}, err
	}

	waiting, err := c.store.QueryEqual(ctx, shared.WaitingPath, "playerCount", 1, 1)
	if err != nil {
		return nil, MatchResult{}, unavailable("quick match", err)
	}
	if len(waiting) > 0 {
		code := waiting[0].Key
		log.Debug().Str("room", code).Msg("Found waiting room")
		s, err := c.JoinRoom(ctx, code, name, character)
		if err == nil {
			return s, MatchResult{Action: Joined, RoomCode: s.Code()}, nil
		}
		log.Info().Err(err).Str("room", code).Msg("Room taken, creating a new one")
	}

	s, err := c.CreateRoom(ctx, name, character)
	if err != nil {
		return nil, MatchResult{}, err
	}
	return s, MatchResult{Action: Created, RoomCode: s.Code()}, nil
}
