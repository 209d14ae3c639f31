package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const redisKeyPrefix = "ratelimit:"

// incrWindow bumps the counter and starts the window on the first hit in a
// single atomic step.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis so that
// every instance of the service shares them.
type RedisLimiter struct {
	rdb    redis.Scripter
	scope  string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter for scope (e.g. "login") admitting limit
// attempts per window.
func NewRedisLimiter(rdb redis.Scripter, scope string, limit int, win time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &RedisLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: win,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := incrWindow.Run(ctx, l.rdb, []string{l.key(key)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, oops.Code("RATELIMIT_UNAVAILABLE").
			With("scope", l.scope).
			With("key", key).
			Wrap(err)
	}
	return n <= int64(l.limit), nil
}

func (l *RedisLimiter) key(key string) string {
	return redisKeyPrefix + l.scope + ":" + key
}

// OpenRedis connects to the Redis server at url, retrying the initial ping
// with exponential backoff.
func OpenRedis(ctx context.Context, url string, attempts uint64) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}
	client := redis.NewClient(opt)

	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, oops.Code("REDIS_UNREACHABLE").With("attempts", attempts).Wrap(err)
	}
	return client, nil
}
