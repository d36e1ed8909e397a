// Package redislock implements sweeper.Locker on Redis so that only one instance
// sweeps at a time.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "simpleasset:sweeper:lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker holds a Redis key for the duration of a sweep. The key expires after TTL
// so a crashed holder cannot block other instances forever; while held, the key is
// refreshed every TTL/3.
type Locker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Locker)

func WithKey(key string) Option {
	return func(l *Locker) { l.key = key }
}

func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

func New(client redis.UniversalClient, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	l := &Locker{
		client: client,
		key:    DefaultKey,
		ttl:    5 * time.Minute,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.ttl < time.Second {
		return nil, fmt.Errorf("lock ttl must be at least 1s, got %s", l.ttl)
	}
	return l, nil
}

// TryLock attempts to take the lock once without waiting.
func (l *Locker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(token, stop, done)

	unlock := func() {
		close(stop)
		<-done
		// Release must run even when the sweep context was cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn("failed to release sweep lock", "key", l.key, "err", err)
		}
	}
	return unlock, true, nil
}

func (l *Locker) refresh(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger.Warn("failed to refresh sweep lock", "key", l.key, "err", err)
				continue
			}
			if n == 0 {
				l.logger.Warn("sweep lock lost", "key", l.key)
				return
			}
		}
	}
}
