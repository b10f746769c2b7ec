// Package ticker prunes the daily and weekly leaderboards on a schedule. Any
// number of daemons may run it; a shared lock lets one of them prune per
// interval.
package ticker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/leaderboard"
	"github.com/AhmedAllam0/icy-tower-online/shared"
)

const LockName = "lock:leaderboard:prune"

// Pruner is implemented by leaderboard.Board.
type Pruner interface {
	Prune(ctx context.Context, p leaderboard.Period, now time.Time) (int, error)
	LastPruned(ctx context.Context) (time.Time, error)
	MarkPruned(ctx context.Context, at time.Time) error
}

type Ticker struct {
	board    Pruner
	locker   shared.Locker
	interval time.Duration
	now      func() time.Time
}

func NewTicker(board Pruner, locker shared.Locker, interval time.Duration) *Ticker {
	return &Ticker{board: board, locker: locker, interval: interval, now: time.Now}
}

// New returns the prune loop over the Redis client in ctx, meant to run in an
// errgroup.
func New(ctx context.Context, interval time.Duration) func() error {
	return func() error {
		rdb := shared.RedisFrom(ctx)
		if rdb == nil {
			return fmt.Errorf("ticker: no redis client in context")
		}
		locker := shared.NewRedsyncLocker(rdb, redsync.WithTries(1))
		return NewTicker(leaderboard.New(rdb), locker, interval).Run(ctx)
	}
}

func (t *Ticker) Run(ctx context.Context) error {
	for {
		if _, err := t.tryTick(ctx); err != nil {
			log.Error().Err(err).Msg("Error pruning leaderboards")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Ticker stopping")
			return nil
		case <-time.After(t.interval):
		}
	}
}

// tryTick prunes unless another daemon holds the lock or pruned less than
// half an interval ago. It reports whether it pruned.
func (t *Ticker) tryTick(ctx context.Context) (bool, error) {
	unlock, err := t.locker.Lock(ctx, LockName)
	if err != nil {
		log.Debug().Err(err).Msg("Another ticker is pruning")
		return false, nil
	}
	defer unlock()

	// Another ticker may have pruned between our wake up and getting the lock.
	now := t.now()
	last, err := t.board.LastPruned(ctx)
	if err != nil {
		return false, err
	}
	if now.Sub(last) < t.interval/2 {
		log.Debug().Time("last", last).Msg("Leaderboards already pruned")
		return false, nil
	}

	var result *multierror.Error
	for _, p := range []leaderboard.Period{leaderboard.Daily, leaderboard.Weekly} {
		if _, err := t.board.Prune(ctx, p, now); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", p, err))
		}
	}
	if err := t.board.MarkPruned(ctx, now); err != nil {
		result = multierror.Append(result, err)
	}
	return true, result.ErrorOrNil()
}
