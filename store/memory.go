package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. One Memory is shared by every client that
// should see the same documents.
type Memory struct {
	mu         sync.Mutex
	root       any
	subs       map[*memorySub]struct{}
	disconnect map[string]map[string]struct{}
	now        func() time.Time
	fail       error
}

type MemoryOption func(*Memory)

// WithClock sets the clock used for server timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		subs:       make(map[*memorySub]struct{}),
		disconnect: make(map[string]map[string]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fail makes every following operation return err, until called with nil.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Disconnect simulates clientID dropping without cleaning up.
func (m *Memory) Disconnect(ctx context.Context, clientID string) ([]string, error) {
	return m.RunDisconnect(ctx, clientID)
}

func (m *Memory) Set(ctx context.Context, path string, v any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return m.write(segs, func(root any, now int64) (any, error) {
		nv, err := normalize(v, now)
		if err != nil {
			return root, err
		}
		return setAt(root, segs, nv), nil
	})
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return m.write(segs, func(root any, now int64) (any, error) {
		return applyUpdate(root, segs, fields, now)
	})
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	return m.Set(ctx, path, nil)
}

func (m *Memory) Transact(ctx context.Context, path string, fn func(Snapshot) (any, error)) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return m.write(segs, func(root any, now int64) (any, error) {
		return transactAt(root, segs, segs, now, fn)
	})
}

func (m *Memory) write(segs []string, fn func(root any, now int64) (any, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	root, err := fn(m.root, m.now().UnixMilli())
	if err != nil {
		return err
	}
	m.root = root
	m.notifyLocked(segs)
	return nil
}

func (m *Memory) notifyLocked(changed []string) {
	for sub := range m.subs {
		if !overlaps(sub.segs, changed) {
			continue
		}
		snap, err := snapshotOf(sub.segs, getAt(m.root, sub.segs))
		if err != nil || bytes.Equal(snap.Value, sub.last) {
			continue
		}
		sub.last = snap.Value
		sub.push(snap)
	}
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Snapshot{}, m.fail
	}
	return snapshotOf(segs, getAt(m.root, segs))
}

func (m *Memory) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	snap, err := snapshotOf(segs, getAt(m.root, segs))
	if err != nil {
		return nil, err
	}
	sub := &memorySub{
		m:    m,
		segs: segs,
		fn:   fn,
		last: snap.Value,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	m.subs[sub] = struct{}{}
	sub.push(snap)
	go sub.loop()
	return sub, nil
}

func (m *Memory) QueryEqual(ctx context.Context, path, child string, value any, limit int) ([]Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return queryEqual(getAt(m.root, segs), segs, child, value, limit)
}

func (m *Memory) OnDisconnectRemove(ctx context.Context, clientID, path string) error {
	if _, err := splitPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.disconnect[clientID] == nil {
		m.disconnect[clientID] = make(map[string]struct{})
	}
	m.disconnect[clientID][path] = struct{}{}
	return nil
}

func (m *Memory) CancelOnDisconnect(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.disconnect, clientID)
	return nil
}

func (m *Memory) RunDisconnect(ctx context.Context, clientID string) ([]string, error) {
	m.mu.Lock()
	if m.fail != nil {
		defer m.mu.Unlock()
		return nil, m.fail
	}
	paths := make([]string, 0, len(m.disconnect[clientID]))
	for p := range m.disconnect[clientID] {
		paths = append(paths, p)
	}
	delete(m.disconnect, clientID)
	m.mu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		if err := m.Remove(ctx, p); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// PendingDisconnect lists the paths registered for clientID.
func (m *Memory) PendingDisconnect(clientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.disconnect[clientID]))
	for p := range m.disconnect[clientID] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type memorySub struct {
	m    *Memory
	segs []string
	fn   func(Snapshot)
	last []byte // guarded by m.mu

	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *memorySub) push(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySub) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			snap := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(snap)
		}
	}
}

func (s *memorySub) Unsubscribe() {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.subs, s)
		s.m.mu.Unlock()
		close(s.done)
	})
}
