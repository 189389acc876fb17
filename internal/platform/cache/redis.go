// Package cache opens the Redis client backing the login throttle.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// Options tunes the Redis client.
type Options struct {
	Addr         string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New returns a Redis client and the result of an initial ping. The client is
// returned even when the ping fails, so callers that tolerate an unavailable
// Redis can keep it and let individual commands fail.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		DialTimeout:  orDefault(opts.DialTimeout, time.Second),
		ReadTimeout:  orDefault(opts.ReadTimeout, 500*time.Millisecond),
		WriteTimeout: orDefault(opts.WriteTimeout, 500*time.Millisecond),
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
