package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	audioKeyPrefix = "tts:audio:"
	defaultTTL     = 30 * 24 * time.Hour
)

// AudioCache maps a synthesis fingerprint to previously produced audio.
// Entries are content-addressed: two workers racing on the same
// fingerprint write identical bytes, so last-write-wins is harmless and
// no locking is needed. Each read refreshes the TTL, which is the whole
// eviction policy.
type AudioCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAudioCache(client *RedisClient) *AudioCache {
	return &AudioCache{client: client.Client, ttl: defaultTTL}
}

// Get returns the cached audio for a fingerprint, or (nil, nil) on miss.
func (c *AudioCache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	key := audioKeyPrefix + fingerprint
	data, err := c.client.GetEx(ctx, key, c.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audio cache: %w", err)
	}
	return data, nil
}

func (c *AudioCache) Set(ctx context.Context, fingerprint string, audio []byte) error {
	key := audioKeyPrefix + fingerprint
	if err := c.client.Set(ctx, key, audio, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write audio cache: %w", err)
	}
	return nil
}
