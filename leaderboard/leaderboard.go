// Package leaderboard keeps the global high scores in Redis, one sorted set
// per period.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/shared"
)

type Period string

const (
	AllTime Period = "allTime"
	Weekly  Period = "weekly"
	Daily   Period = "daily"
)

var Periods = []Period{AllTime, Weekly, Daily}

var ErrUnknownPeriod = errors.New("unknown leaderboard period")

func ParsePeriod(s string) (Period, error) {
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// Retention is how long entries stay in the period. Zero means forever.
func (p Period) Retention() time.Duration {
	switch p {
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

func scoresKey(p Period) string  { return "leaderboard:" + string(p) + ":scores" }
func timesKey(p Period) string   { return "leaderboard:" + string(p) + ":times" }
func entriesKey(p Period) string { return "leaderboard:" + string(p) + ":entries" }

const DefaultGameMode = "classic"

type Entry struct {
	ID         string `json:"id,omitempty"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
	Floor      int    `json:"floor"`
	Character  int    `json:"character"`
	GameMode   string `json:"gameMode"`
	// Timestamp is the Redis server time of the save, in milliseconds.
	Timestamp int64 `json:"timestamp"`
}

type Board struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

// Save appends the entry to every period and returns it with its id and
// timestamp filled in.
func (b *Board) Save(ctx context.Context, e Entry) (Entry, error) {
	now, err := b.rdb.Time(ctx).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("error getting server time: %w", err)
	}

	e.ID = uuid.NewString()
	e.PlayerName = shared.TrimName(e.PlayerName)
	e.Timestamp = now.UnixMilli()
	if e.GameMode == "" {
		e.GameMode = DefaultGameMode
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}

	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range Periods {
			pipe.ZAdd(ctx, scoresKey(p), &redis.Z{Score: float64(e.Score), Member: e.ID})
			pipe.ZAdd(ctx, timesKey(p), &redis.Z{Score: float64(e.Timestamp), Member: e.ID})
			pipe.HSet(ctx, entriesKey(p), e.ID, raw)
		}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("error saving score: %w", err)
	}

	log.Info().Str("player", e.PlayerName).Int("score", e.Score).Msg("Score saved")
	return e, nil
}

// Top returns up to limit entries of the period, highest score first.
func (b *Board) Top(ctx context.Context, p Period, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := b.rdb.ZRevRange(ctx, scoresKey(p), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting top scores: %w", err)
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	raws, err := b.rdb.HMGet(ctx, entriesKey(p), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting entries: %w", err)
	}
	entries := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			// Pruned between the two reads.
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			log.Warn().Err(err).Str("period", string(p)).Str("id", ids[i]).Msg("Skipping corrupt entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Rank is the position a score would take: one more than the number of
// stored entries scoring at least as much.
func (b *Board) Rank(ctx context.Context, p Period, score int) (int64, error) {
	n, err := b.rdb.ZCount(ctx, scoresKey(p), strconv.Itoa(score), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("error getting rank: %w", err)
	}
	return n + 1, nil
}

// Prune drops the entries older than the period's retention and returns how
// many were removed.
func (b *Board) Prune(ctx context.Context, p Period, now time.Time) (int, error) {
	retention := p.Retention()
	if retention == 0 {
		return 0, nil
	}
	cutoff := now.Add(-retention).UnixMilli()

	ids, err := b.rdb.ZRangeByScore(ctx, timesKey(p), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("error finding old scores: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, scoresKey(p), members...)
		pipe.ZRem(ctx, timesKey(p), members...)
		pipe.HDel(ctx, entriesKey(p), ids...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error removing old scores: %w", err)
	}

	log.Info().Str("period", string(p)).Int("removed", len(ids)).Msg("Cleaned old scores")
	return len(ids), nil
}

const lastPruneKey = "leaderboard:lastPrune"

// LastPruned returns when MarkPruned was last called, or the zero time.
func (b *Board) LastPruned(ctx context.Context) (time.Time, error) {
	ms, err := b.rdb.Get(ctx, lastPruneKey).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error getting last prune time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func (b *Board) MarkPruned(ctx context.Context, at time.Time) error {
	if err := b.rdb.Set(ctx, lastPruneKey, at.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("error setting last prune time: %w", err)
	}
	return nil
}
