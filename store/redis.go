package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

const maxTxRetries = 16

// Redis keeps one JSON document per pair of leading path segments, so
// "rooms/ABC234/players/x" lives in the document "rooms/ABC234". Writes are
// optimistic WATCH/MULTI transactions that publish the changed path on the
// document's channel.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func docKey(doc string) string           { return "doc:" + doc }
func docChannel(doc string) string       { return "notify:" + doc }
func disconnectKey(client string) string { return "ondisconnect:" + client }

func splitDoc(segs []string) (doc string, rest []string, err error) {
	if len(segs) < 2 {
		return "", nil, fmt.Errorf("%w: %q is above document level", ErrInvalidPath, strings.Join(segs, "/"))
	}
	return segs[0] + "/" + segs[1], segs[2:], nil
}

func decodeDoc(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("error unmarshalling json data: %w. Raw: %s", err, raw)
	}
	return root, nil
}

func (r *Redis) serverMillis(ctx context.Context) (int64, error) {
	now, err := r.rdb.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("error getting server time: %w", err)
	}
	return now.UnixMilli(), nil
}

// write applies fn to the document holding segs inside a transaction and
// notifies subscribers with the changed path.
func (r *Redis) write(ctx context.Context, segs []string, fn func(doc any, rest []string, now int64) (any, error)) error {
	doc, rest, err := splitDoc(segs)
	if err != nil {
		return err
	}
	now, err := r.serverMillis(ctx)
	if err != nil {
		return err
	}
	key := docKey(doc)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		root, err := decodeDoc(raw)
		if err != nil {
			return err
		}
		root, err = fn(root, rest, now)
		if err != nil {
			return err
		}
		var b []byte
		if root != nil {
			if b, err = json.Marshal(root); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if root == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, b, 0)
			}
			pipe.Publish(ctx, docChannel(doc), strings.Join(segs, "/"))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("%w on %s", ErrConflict, doc)
}

func (r *Redis) Set(ctx context.Context, path string, v any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return r.write(ctx, segs, func(root any, rest []string, now int64) (any, error) {
		nv, err := normalize(v, now)
		if err != nil {
			return root, err
		}
		return setAt(root, rest, nv), nil
	})
}

func (r *Redis) Update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return r.write(ctx, segs, func(root any, rest []string, now int64) (any, error) {
		return applyUpdate(root, rest, fields, now)
	})
}

// Transact reruns fn when another writer changed the document first.
func (r *Redis) Transact(ctx context.Context, path string, fn func(Snapshot) (any, error)) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return r.write(ctx, segs, func(root any, rest []string, now int64) (any, error) {
		return transactAt(root, rest, segs, now, fn)
	})
}

func (r *Redis) Remove(ctx context.Context, path string) error {
	return r.Set(ctx, path, nil)
}

func (r *Redis) load(ctx context.Context, doc string) (any, error) {
	raw, err := r.rdb.Get(ctx, docKey(doc)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting document %s: %w", doc, err)
	}
	return decodeDoc(raw)
}

func (r *Redis) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	doc, rest, err := splitDoc(segs)
	if err != nil {
		return Snapshot{}, err
	}
	root, err := r.load(ctx, doc)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(segs, getAt(root, rest))
}

func (r *Redis) QueryEqual(ctx context.Context, path, child string, value any, limit int) ([]Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	doc, rest, err := splitDoc(segs)
	if err != nil {
		return nil, err
	}
	root, err := r.load(ctx, doc)
	if err != nil {
		return nil, err
	}
	return queryEqual(getAt(root, rest), segs, child, value, limit)
}

func (r *Redis) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	doc, _, err := splitDoc(segs)
	if err != nil {
		return nil, err
	}

	// Subscribe before the first read so no write can fall in between.
	ps := r.rdb.Subscribe(ctx, docChannel(doc))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("error subscribing to %s: %w", doc, err)
	}
	first, err := r.Get(ctx, path)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSub{ps: ps, cancel: cancel}
	go func() {
		last := first.Value
		fn(first)
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				changed, err := splitPath(msg.Payload)
				if err != nil || !overlaps(segs, changed) {
					continue
				}
				snap, err := r.Get(subCtx, path)
				if err != nil {
					if subCtx.Err() == nil {
						log.Warn().Err(err).Str("path", path).Msg("Error reading subscribed path")
					}
					continue
				}
				if bytes.Equal(snap.Value, last) {
					continue
				}
				last = snap.Value
				if subCtx.Err() != nil {
					return
				}
				fn(snap)
			}
		}
	}()
	return sub, nil
}

type redisSub struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
}

func (s *redisSub) Unsubscribe() {
	s.cancel()
	_ = s.ps.Close()
}

func (r *Redis) OnDisconnectRemove(ctx context.Context, clientID, path string) error {
	if _, err := splitPath(path); err != nil {
		return err
	}
	return r.rdb.SAdd(ctx, disconnectKey(clientID), path).Err()
}

func (r *Redis) CancelOnDisconnect(ctx context.Context, clientID string) error {
	return r.rdb.Del(ctx, disconnectKey(clientID)).Err()
}

func (r *Redis) RunDisconnect(ctx context.Context, clientID string) ([]string, error) {
	paths, err := r.rdb.SMembers(ctx, disconnectKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting disconnect actions for %s: %w", clientID, err)
	}
	sort.Strings(paths)

	var result *multierror.Error
	for _, p := range paths {
		if err := r.Remove(ctx, p); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		// Keep the actions so a later run can retry them.
		return nil, err
	}
	if err := r.rdb.Del(ctx, disconnectKey(clientID)).Err(); err != nil {
		return paths, err
	}
	return paths, nil
}
