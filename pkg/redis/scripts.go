package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// windowScript counts a hit and starts the window expiry on the first one,
// in a single round trip.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// FixedWindowAllow counts a hit for scope and reports whether it is within limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if err := c.ready(); err != nil {
		return false, 0, err
	}
	count, err := windowScript.Run(ctx, c.rdb, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// AcquireLock takes a TTL-bounded lock identified by token.
func (c *Client) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.LockKey(name), token, ttl)
}

// ReleaseLock drops the lock if token still owns it.
func (c *Client) ReleaseLock(ctx context.Context, name, token string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := unlockScript.Run(ctx, c.rdb, []string{c.LockKey(name)}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
