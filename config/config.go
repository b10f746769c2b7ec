// Package config reads the daemon settings from the environment, after
// loading a .env file if there is one.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultQueueEndpoint = "us-east-1-a-queue.ably.io:5671"
	DefaultHTTPAddr      = ":8080"
	DefaultPruneInterval = 10 * time.Minute
	DefaultLogLevel      = "info"
)

type Config struct {
	RedisURL      string
	AblyAPIKey    string
	AblyQueue     string
	QueueEndpoint string
	HTTPAddr      string
	PruneInterval time.Duration
	LogLevel      string
}

var ErrMissing = errors.New("missing required setting")

// Load reads the environment. Files are .env files to load first; with none
// given, ./.env is loaded if present. Variables already set are not
// overridden.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("error loading env file: %w", err)
		}
	}

	cfg := Config{
		RedisURL:      os.Getenv("REDIS_URL"),
		AblyAPIKey:    os.Getenv("ABLY_API_KEY"),
		AblyQueue:     os.Getenv("ABLY_QUEUE_NAME"),
		QueueEndpoint: getenv("ABLY_QUEUE_ENDPOINT", DefaultQueueEndpoint),
		HTTPAddr:      getenv("HTTP_ADDR", DefaultHTTPAddr),
		PruneInterval: DefaultPruneInterval,
		LogLevel:      getenv("LOG_LEVEL", DefaultLogLevel),
	}
	if s := os.Getenv("PRUNE_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid PRUNE_INTERVAL %q", s)
		}
		cfg.PruneInterval = d
	}

	for name, v := range map[string]string{
		"REDIS_URL":       cfg.RedisURL,
		"ABLY_API_KEY":    cfg.AblyAPIKey,
		"ABLY_QUEUE_NAME": cfg.AblyQueue,
	} {
		if v == "" {
			return Config{}, fmt.Errorf("%w: %s", ErrMissing, name)
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
