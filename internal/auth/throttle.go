package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memopsy/memopsy/internal/shared"
)

const throttlePrefix = "login:attempts:"

// Throttle limits failed sign-in attempts per email address in a fixed
// window, using a Redis counter.
type Throttle struct {
	client redis.Cmdable
	max    int
	window time.Duration
}

// NewThrottle builds a Throttle. A non-positive max disables it.
func NewThrottle(client redis.Cmdable, max int, window time.Duration) *Throttle {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Throttle{client: client, max: max, window: window}
}

// Allow returns shared.ErrTooManyAttempts once key has used up its failures.
func (t *Throttle) Allow(ctx context.Context, key string) error {
	if t == nil || t.client == nil || t.max <= 0 {
		return nil
	}
	n, err := t.client.Get(ctx, throttlePrefix+key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("auth: read throttle: %w", err)
	}
	if n >= t.max {
		return shared.ErrTooManyAttempts
	}
	return nil
}

// Fail counts one failed attempt. The window starts with the first failure.
func (t *Throttle) Fail(ctx context.Context, key string) error {
	if t == nil || t.client == nil || t.max <= 0 {
		return nil
	}
	k := throttlePrefix + key
	n, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("auth: count failure: %w", err)
	}
	if n == 1 {
		if err := t.client.Expire(ctx, k, t.window).Err(); err != nil {
			return fmt.Errorf("auth: expire throttle: %w", err)
		}
	}
	return nil
}

// Reset forgets the failures of key.
func (t *Throttle) Reset(ctx context.Context, key string) error {
	if t == nil || t.client == nil || t.max <= 0 {
		return nil
	}
	return t.client.Del(ctx, throttlePrefix+key).Err()
}
