package shared

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/rs/zerolog/log"
)

// Locker hands out named locks shared between daemon instances.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

type RedsyncLocker struct {
	rs   *redsync.Redsync
	opts []redsync.Option
}

// NewRedsyncLocker builds a Locker over rdb. The options apply to every
// mutex it creates; redsync.WithTries(1) turns Lock into a try-lock.
func NewRedsyncLocker(rdb *redis.Client, opts ...redsync.Option) *RedsyncLocker {
	pool := goredis.NewPool(rdb)
	return &RedsyncLocker{rs: redsync.New(pool), opts: opts}
}

func (l *RedsyncLocker) Lock(ctx context.Context, name string) (func(), error) {
	mutex := l.rs.NewMutex(name, l.opts...)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("error acquiring lock %s: %w", name, err)
	}
	return func() {
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			log.Warn().Err(err).Str("lock", name).Msg("Unlock failed")
		}
	}, nil
}
