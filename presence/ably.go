// Package presence puts clients on their room's Ably control channel, so the
// worker hears about dropped connections, and carries the worker's
// announcements on the server channel.
package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/ably/ably-go/ably"

	"github.com/AhmedAllam0/icy-tower-online/shared"
)

type Ably struct {
	client *ably.Realtime

	mu   sync.Mutex
	offs []func()
}

// NewAbly connects to Ably as clientID. The client id must be the peer id the
// client uses in the store, the worker runs disconnect actions by it.
func NewAbly(apiKey, clientID string) (*Ably, error) {
	opts := []ably.ClientOption{ably.WithKey(apiKey)}
	if clientID != "" {
		opts = append(opts, ably.WithClientID(clientID))
	}
	client, err := ably.NewRealtime(opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating ably client: %w", err)
	}
	return FromRealtime(client), nil
}

func FromRealtime(client *ably.Realtime) *Ably {
	return &Ably{client: client}
}

func (a *Ably) Enter(ctx context.Context, code string) error {
	ch := a.client.Channels.Get(shared.ControlChannel(code))
	if err := ch.Presence.Enter(ctx, nil); err != nil {
		return fmt.Errorf("error entering %s: %w", shared.ControlChannel(code), err)
	}
	return nil
}

func (a *Ably) Leave(ctx context.Context, code string) error {
	ch := a.client.Channels.Get(shared.ControlChannel(code))
	if err := ch.Presence.Leave(ctx, nil); err != nil {
		return fmt.Errorf("error leaving %s: %w", shared.ControlChannel(code), err)
	}
	return nil
}

// Announce publishes a server message to everyone in the room.
func (a *Ably) Announce(ctx context.Context, code, name string, data interface{}) error {
	ch := a.client.Channels.Get(shared.ServerChannel(code))
	if err := ch.Publish(ctx, name, data); err != nil {
		return fmt.Errorf("error announcing %s on %s: %w", name, shared.ServerChannel(code), err)
	}
	return nil
}

// Connectivity streams whether the connection is up, starting with the
// current state. Only the latest state is kept for a slow reader.
func (a *Ably) Connectivity() <-chan bool {
	ch := make(chan bool, 1)
	if up, ok := connected(a.client.Connection.State()); ok {
		offer(ch, up)
	}
	off := a.client.Connection.OnAll(func(change ably.ConnectionStateChange) {
		if up, ok := connected(change.Current); ok {
			offer(ch, up)
		}
	})

	a.mu.Lock()
	a.offs = append(a.offs, off)
	a.mu.Unlock()
	return ch
}

func (a *Ably) Close() {
	a.mu.Lock()
	offs := a.offs
	a.offs = nil
	a.mu.Unlock()
	for _, off := range offs {
		off()
	}
	a.client.Close()
}

// connected maps a connection state to up or down. Transitional states report
// nothing.
func connected(state ably.ConnectionState) (up bool, ok bool) {
	switch state {
	case ably.ConnectionStateConnected:
		return true, true
	case ably.ConnectionStateDisconnected, ably.ConnectionStateSuspended,
		ably.ConnectionStateClosed, ably.ConnectionStateFailed:
		return false, true
	}
	return false, false
}

// offer replaces any unread value in ch with v.
func offer(ch chan bool, v bool) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
