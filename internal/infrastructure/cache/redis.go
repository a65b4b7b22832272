package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abdurazzoq789/uz-tts/internal/config"
)

// queueBlockTimeout mirrors the BRPop wait used by the synthesis queue;
// the client read timeout must sit above it or every idle poll surfaces
// as a spurious i/o error.
const queueBlockTimeout = 30 * time.Second

// RedisClient backs both the synthesis job queue and the audio cache.
// Worker goroutines park in BRPop while the bot pushes jobs and reads
// multi-megabyte audio blobs over the same pool, so idle connections are
// kept warm and the read timeout accommodates the blocking pop.
type RedisClient struct {
	*redis.Client
}

func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  queueBlockTimeout + 5*time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{rdb}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func (r *RedisClient) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	return r.Ping(ctx).Err()
}
