// Package worker consumes the Ably queue of control channel presence events
// and runs the disconnect cleanup of clients that dropped out of a room.
package worker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/AhmedAllam0/icy-tower-online/presence"
	"github.com/AhmedAllam0/icy-tower-online/shared"
	"github.com/AhmedAllam0/icy-tower-online/store"
)

type Config struct {
	APIKey   string
	Queue    string
	Endpoint string
}

func (c Config) url() string {
	return fmt.Sprintf("amqps://%s@%s/shared", c.APIKey, c.Endpoint)
}

// New returns the consume loop, meant to run in an errgroup. The Redis and
// Ably clients are taken from ctx.
func New(ctx context.Context, cfg Config) func() error {
	return func() error {
		h, err := handlerFrom(ctx)
		if err != nil {
			return err
		}

		conn, err := amqp.Dial(cfg.url())
		if err != nil {
			return fmt.Errorf("error connecting to Ably queue: %w", err)
		}
		defer conn.Close()
		log.Info().Str("endpoint", cfg.Endpoint).Msg("Connected to Ably queue")

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open a channel: %w", err)
		}
		defer ch.Close()

		msgs, err := ch.Consume(
			cfg.Queue, // queue
			"",        // consumer
			true,      // auto-ack
			false,     // exclusive
			false,     // no-local
			false,     // no-wait
			nil,       // args
		)
		if err != nil {
			return fmt.Errorf("failed to consume messages: %w", err)
		}
		log.Info().Str("queue", cfg.Queue).Msg("Listening for messages on queue")

		return consume(ctx, msgs, h)
	}
}

func handlerFrom(ctx context.Context) (*Handler, error) {
	rdb := shared.RedisFrom(ctx)
	if rdb == nil {
		return nil, fmt.Errorf("worker: no redis client in context")
	}
	client := shared.AblyFrom(ctx)
	if client == nil {
		return nil, fmt.Errorf("worker: no ably client in context")
	}
	return NewHandler(store.NewRedis(rdb), shared.NewRedsyncLocker(rdb), presence.FromRealtime(client)), nil
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, h *Handler) error {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Worker stopping")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("queue delivery channel closed")
			}
			if err := h.Handle(ctx, d.Body); err != nil {
				log.Error().Err(err).Msg("Error handling queue message")
			}
		}
	}
}
