// Package lock serialises critical sections across application instances
// using Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained indicates the lock stayed busy until the wait deadline.
var ErrNotObtained = errors.New("platform/lock: lock not obtained")

// BusyError reports the key that stayed locked. The request may be retried.
type BusyError struct {
	Key string
}

func (e *BusyError) Error() string        { return fmt.Sprintf("%s: %s", ErrNotObtained, e.Key) }
func (e *BusyError) Is(target error) bool { return target == ErrNotObtained }
func (e *BusyError) Status() int          { return http.StatusServiceUnavailable }
func (e *BusyError) Title() string        { return "Resource Busy" }

// Locker wraps a redislock client. A nil Locker runs callbacks unguarded.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// Config tunes lock lifetime and how long callers wait for it.
type Config struct {
	TTL  time.Duration
	Wait time.Duration
}

// New constructs a Locker on top of a Redis client.
func New(client *redis.Client, cfg Config) *Locker {
	if client == nil {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = cfg.TTL
	}
	return &Locker{client: redislock.New(client), ttl: cfg.TTL, wait: cfg.Wait}
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	held, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(l.wait/(50*time.Millisecond))),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &BusyError{Key: key}
	}
	if err != nil {
		return fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
