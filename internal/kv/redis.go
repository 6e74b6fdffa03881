package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "mentorjournal:"

// RedisBackend stores records as string values and tracks the keys of
// each type in a set
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to redisURL and pings it
func NewRedisBackend(ctx context.Context, redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func recordKey(typ, key string) string { return redisPrefix + typ + ":" + key }
func indexKey(typ string) string       { return redisPrefix + typ + ":keys" }

// Read implements Backend
func (b *RedisBackend) Read(ctx context.Context, typ, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, recordKey(typ, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write implements Backend
func (b *RedisBackend) Write(ctx context.Context, typ, key string, data []byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(typ, key), data, 0)
		pipe.SAdd(ctx, indexKey(typ), key)
		return nil
	})
	return err
}

// Keys implements Backend
func (b *RedisBackend) Keys(ctx context.Context, typ string) ([]string, error) {
	return b.client.SMembers(ctx, indexKey(typ)).Result()
}

// Close implements Backend
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
