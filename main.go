package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ably/ably-go/ably"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/AhmedAllam0/icy-tower-online/config"
	"github.com/AhmedAllam0/icy-tower-online/httpapi"
	"github.com/AhmedAllam0/icy-tower-online/leaderboard"
	"github.com/AhmedAllam0/icy-tower-online/logging"
	"github.com/AhmedAllam0/icy-tower-online/shared"
	"github.com/AhmedAllam0/icy-tower-online/ticker"
	"github.com/AhmedAllam0/icy-tower-online/worker"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(config.DefaultLogLevel)
		log.Fatal().Err(err).Msg("Error loading config")
	}
	logging.Setup(cfg.LogLevel)
	log.Info().Msg("Starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()
	gCtx = shared.WithRedis(gCtx, redisClient)

	// Ably
	ablyClient, err := ably.NewRealtime(ably.WithKey(cfg.AblyAPIKey), ably.WithClientID("worker"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating Ably client")
	}
	defer ablyClient.Close()
	gCtx = shared.WithAbly(gCtx, ablyClient)

	// Worker listening for presence events on the queue
	g.Go(worker.New(gCtx, worker.Config{
		APIKey:   cfg.AblyAPIKey,
		Queue:    cfg.AblyQueue,
		Endpoint: cfg.QueueEndpoint,
	}))

	// Leaderboard pruning
	g.Go(ticker.New(gCtx, cfg.PruneInterval))

	// Leaderboard HTTP API
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(leaderboard.New(redisClient)),
	}
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Error group")
	}

	log.Info().Msg("Exiting")
}
