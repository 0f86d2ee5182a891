package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DefaultRunLockKey is the redis key guarding check runs across processes.
const DefaultRunLockKey = "pricecheck:run"

const releaseTimeout = 5 * time.Second

// releaseIfOwner deletes the run key only while it still holds the caller's
// token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock keeps two processes from running a check at the same time. The
// in-process guard in Orchestrator always applies; a RunLock is only needed
// when the api and the CLI share a database.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// RedisRunLock holds DefaultRunLockKey (or another key) with SET NX and a
// per-run token. The ttl frees the key if the holder dies mid-run.
type RedisRunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisRunLock returns nil when client is nil so callers can pass the
// result straight into Dependencies.
func NewRedisRunLock(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) RunLock {
	if client == nil {
		return nil
	}
	if key == "" {
		key = DefaultRunLockKey
	}
	if ttl <= 0 {
		ttl = DefaultConfig().RunTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRunLock{client: client, key: key, ttl: ttl, logger: logger}
}

// TryAcquire takes the lock for ttl. The returned release is safe to call
// after ctx is done.
func (l *RedisRunLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		ttl, _ := l.client.PTTL(ctx, l.key).Result()
		l.logger.Info("Price check running in another process",
			slog.String("key", l.key),
			slog.Duration("expires_in", ttl),
		)
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		deleted, err := releaseIfOwner.Run(ctx, l.client, []string{l.key}, token).Int()
		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			l.logger.Warn("Failed to release run lock",
				slog.String("key", l.key),
				slog.String("error", err.Error()),
			)
		case deleted == 0:
			l.logger.Warn("Run lock expired before the run finished",
				slog.String("key", l.key),
				slog.Duration("ttl", l.ttl),
			)
		}
	}
	return release, true, nil
}
