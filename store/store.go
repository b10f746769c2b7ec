// Package store is the shared document space the two peers of a room talk
// through: a tree of JSON values addressed by slash separated paths, with
// value subscriptions and per-client disconnect actions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrNotFound    = errors.New("no value at path")
	ErrConflict    = errors.New("too many concurrent writers")
)

// Store is implemented by Memory and Redis.
//
// Writes from one writer are delivered to subscribers in write order. Nothing
// is promised about ordering between writers.
type Store interface {
	// Set replaces the subtree at path. A nil value removes it.
	Set(ctx context.Context, path string, v any) error
	// Update merges the given children into path in one atomic write. Keys
	// may be relative paths; a nil value removes that child.
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	// Transact passes the current value at path to fn and writes what fn
	// returns in the same atomic step. fn may run more than once and must not
	// call the store. If fn returns an error nothing is written and the error
	// is returned as is.
	Transact(ctx context.Context, path string, fn func(Snapshot) (any, error)) error
	// Get reads the current value at path.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Subscribe calls fn with the current value at path and again every time
	// a write changes it. Calls to fn are sequential.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error)
	// QueryEqual returns the children of path whose child field equals
	// value, in key order, at most limit of them.
	QueryEqual(ctx context.Context, path, child string, value any, limit int) ([]Snapshot, error)

	// OnDisconnectRemove registers path for removal when clientID drops
	// without cleaning up.
	OnDisconnectRemove(ctx context.Context, clientID, path string) error
	// CancelOnDisconnect forgets every action registered for clientID.
	CancelOnDisconnect(ctx context.Context, clientID string) error
	// RunDisconnect executes and forgets the actions registered for clientID
	// and returns the removed paths.
	RunDisconnect(ctx context.Context, clientID string) ([]string, error)
}

type Subscription interface {
	Unsubscribe()
}

// Snapshot is the value found at a path at one point in time.
type Snapshot struct {
	Key   string
	Value json.RawMessage
}

func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

func (s Snapshot) Decode(dst any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	return json.Unmarshal(s.Value, dst)
}

// Join builds a path from segments.
func Join(segs ...string) string {
	return strings.Join(segs, "/")
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "#$[]") {
			return nil, ErrInvalidPath
		}
	}
	return segs, nil
}

func snapshotOf(segs []string, v any) (Snapshot, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: segs[len(segs)-1], Value: b}, nil
}
