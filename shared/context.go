package shared

import (
	"context"

	"github.com/ably/ably-go/ably"
	"github.com/go-redis/redis/v8"
)

type RedisCtxKey struct{}
type AblyCtxKey struct{}

func WithRedis(ctx context.Context, rdb *redis.Client) context.Context {
	return context.WithValue(ctx, RedisCtxKey{}, rdb)
}

func WithAbly(ctx context.Context, client *ably.Realtime) context.Context {
	return context.WithValue(ctx, AblyCtxKey{}, client)
}

func RedisFrom(ctx context.Context) *redis.Client {
	rdb, _ := ctx.Value(RedisCtxKey{}).(*redis.Client)
	return rdb
}

func AblyFrom(ctx context.Context) *ably.Realtime {
	client, _ := ctx.Value(AblyCtxKey{}).(*ably.Realtime)
	return client
}
