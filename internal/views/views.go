// Package views provides the Redis staging buffer for view counters.
// Under heavy read load, writing one row per page view would hammer the
// contents table, so increments accumulate in Redis and a background loop
// flushes them in batches.
package views

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Flusher receives the drained counters. The content manager's store sink
// satisfies it.
type Flusher interface {
	Add(ctx context.Context, contentID, delta int64) error
}

// RedisBuffer stages view increments in Redis hash-free counters keyed by
// content id.
type RedisBuffer struct {
	client  *redis.Client
	flusher Flusher
	prefix  string
	done    chan struct{}
}

// NewRedisBuffer connects to Redis and starts a flush loop with the given
// interval. interval <= 0 disables the loop; Flush can still be called
// explicitly.
func NewRedisBuffer(redisURL string, flusher Flusher, interval time.Duration) (*RedisBuffer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	b := &RedisBuffer{
		client:  client,
		flusher: flusher,
		prefix:  "views:",
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go b.flushLoop(interval)
	}
	return b, nil
}

// NewRedisBufferWithClient builds a buffer from an existing client, used
// by tests against miniredis.
func NewRedisBufferWithClient(client *redis.Client, flusher Flusher) *RedisBuffer {
	return &RedisBuffer{
		client:  client,
		flusher: flusher,
		prefix:  "views:",
		done:    make(chan struct{}),
	}
}

func (b *RedisBuffer) key(contentID int64) string {
	return b.prefix + strconv.FormatInt(contentID, 10)
}

// Add stages one increment.
func (b *RedisBuffer) Add(ctx context.Context, contentID, delta int64) error {
	if err := b.client.IncrBy(ctx, b.key(contentID), delta).Err(); err != nil {
		return fmt.Errorf("stage view: %w", err)
	}
	return nil
}

func (b *RedisBuffer) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := b.Flush(ctx); err != nil {
				log.Printf("views: flush: %v", err)
			}
			cancel()
		}
	}
}

// Flush drains every staged counter into the flusher. A counter is read
// and deleted atomically with GETDEL so concurrent increments are never
// lost, only deferred to the next flush.
func (b *RedisBuffer) Flush(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := b.client.GetDel(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("drain %s: %w", key, err)
		}
		delta, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || delta == 0 {
			continue
		}
		contentID, err := strconv.ParseInt(strings.TrimPrefix(key, b.prefix), 10, 64)
		if err != nil {
			continue
		}
		if err := b.flusher.Add(ctx, contentID, delta); err != nil {
			// Put the delta back so it survives until the store recovers.
			if restoreErr := b.client.IncrBy(ctx, key, delta).Err(); restoreErr != nil {
				log.Printf("views: restage %s: %v", key, restoreErr)
			}
			return fmt.Errorf("flush %s: %w", key, err)
		}
	}
	return iter.Err()
}

// Close stops the flush loop and performs a final drain.
func (b *RedisBuffer) Close() error {
	close(b.done)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.Flush(ctx); err != nil {
		log.Printf("views: final flush: %v", err)
	}
	return b.client.Close()
}

// Ping checks if Redis is reachable.
func (b *RedisBuffer) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
