package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// acquireScript sets every key to the token only if none of them exist.
var acquireScript = rueidis.NewLuaScript(`
for i = 1, #KEYS do
	if redis.call("EXISTS", KEYS[i]) == 1 then
		return 0
	end
end
for i = 1, #KEYS do
	redis.call("SET", KEYS[i], ARGV[1], "PX", ARGV[2])
end
return 1
`)

// releaseScript deletes only the keys still holding the token.
var releaseScript = rueidis.NewLuaScript(`
local n = 0
for i = 1, #KEYS do
	if redis.call("GET", KEYS[i]) == ARGV[1] then
		n = n + redis.call("DEL", KEYS[i])
	end
end
return n
`)

// RedisLocker is a Locker shared by every instance using the same Redis.
type RedisLocker struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client rueidis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		logger: logger.Named("redis_lock"),
	}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, keys []string, ttl time.Duration) (Release, error) {
	if len(keys) == 0 {
		return func(context.Context) {}, nil
	}

	token := uuid.NewString()
	args := []string{token, strconv.FormatInt(ttl.Milliseconds(), 10)}

	ok, err := acquireScript.Exec(ctx, l.client, keys, args).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok == 0 {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) {
		// Release even when the caller's context is already done
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := releaseScript.Exec(ctx, l.client, keys, []string{token}).Error(); err != nil {
			l.logger.Warn("Failed to release lock; it will expire",
				zap.Strings("keys", keys),
				zap.Error(err))
		}
	}, nil
}
