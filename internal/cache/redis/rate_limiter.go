package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// slidingWindow approximates a sliding window from two fixed-window
// counters: the previous window counts in proportion to how much of it
// still overlaps the sliding window.
//
// KEYS[1] current window counter, KEYS[2] previous window counter
// ARGV[1] limit, ARGV[2] previous-window weight in parts per million,
// ARGV[3] counter TTL in ms
var slidingWindow = redis.NewScript(`
local curr = tonumber(redis.call('GET', KEYS[1]) or '0')
local prev = tonumber(redis.call('GET', KEYS[2]) or '0')
if math.floor(prev * tonumber(ARGV[2]) / 1000000) + curr >= tonumber(ARGV[1]) then
	return 0
end
redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1`)

// RateLimiter is a distributed sliding-window limiter.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter on c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb, now: time.Now}
}

// Allow counts one request against key and reports whether it fits within
// limit per window. Denied requests are not counted. A non-positive limit
// or window allows everything.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	w := window.Milliseconds()
	if w == 0 {
		w = 1
	}
	now := rl.now().UnixMilli()
	slot := now / w
	weight := 1_000_000 - (now%w)*1_000_000/w

	base := "ratelimit:" + key + ":"
	keys := []string{base + strconv.FormatInt(slot, 10), base + strconv.FormatInt(slot-1, 10)}
	allowed, err := slidingWindow.Run(ctx, rl.rdb, keys, limit, weight, 2*w).Int()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return allowed == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
