package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/ratelimit"
)

const (
	defaultLimitPerSec = 100
	minWindowWait      = 5 * time.Millisecond
	window             = time.Second
)

// reserveScript adds ARGV[3] messages to the window counter and rolls the
// reservation back when it would exceed ARGV[1].
var reserveScript = goredis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[3])
if current == tonumber(ARGV[3]) then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call("DECRBY", KEYS[1], ARGV[3])
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps messages per second for each channel across every
// api and worker process talking to the same providers.
type RedisRateLimiter struct {
	client *goredis.Client
	limits map[domain.Channel]int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter applies limitPerSec to every channel unless perChannel
// overrides it. Non-positive values fall back to the default.
func NewRedisRateLimiter(client *goredis.Client, limitPerSec int, perChannel map[domain.Channel]int) (*RedisRateLimiter, error) {
	limits := make(map[domain.Channel]int, len(perChannel)+2)
	for _, ch := range []domain.Channel{domain.ChannelPush, domain.ChannelEmail} {
		limits[ch] = limitPerSec
	}
	for ch, limit := range perChannel {
		if !ch.IsValid() {
			return nil, fmt.Errorf("invalid channel %q in rate limits", ch)
		}
		if limit > 0 {
			limits[ch] = limit
		}
	}
	return newRedisRateLimiter(client, limits, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limits map[domain.Channel]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	normalized := make(map[domain.Channel]int64, len(limits))
	for ch, limit := range limits {
		if limit <= 0 {
			limit = defaultLimitPerSec
		}
		normalized[ch] = int64(limit)
	}

	return &RedisRateLimiter{
		client: client,
		limits: normalized,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

// Limit returns the per-second budget for channel.
func (r *RedisRateLimiter) Limit(channel domain.Channel) int64 {
	if limit, ok := r.limits[channel]; ok {
		return limit
	}
	return defaultLimitPerSec
}

// Allow reserves n messages in the current one-second window for channel.
// Requests larger than the whole window are clamped to it so a single big
// chunk can still go out.
func (r *RedisRateLimiter) Allow(ctx context.Context, channel domain.Channel, n int) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	if !channel.IsValid() {
		return false, fmt.Errorf("invalid channel %q", channel)
	}

	limit := r.Limit(channel)
	cost := min(max(int64(n), 1), limit)

	key := windowKey(channel, r.now())
	allowed, err := reserveScript.Run(ctx, r.client, []string{key}, limit, int(window/time.Second), cost).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve %s rate limit: %w", channel.Key(), err)
	}
	return allowed == 1, nil
}

// Wait blocks until n messages fit in a window or ctx ends. It sleeps until
// the current window closes rather than polling.
func (r *RedisRateLimiter) Wait(ctx context.Context, channel domain.Channel, n int) error {
	for {
		allowed, err := r.Allow(ctx, channel, n)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if err := r.sleep(ctx, untilNextWindow(r.now())); err != nil {
			return err
		}
	}
}

func windowKey(channel domain.Channel, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", channel.Key(), now.UTC().Unix())
}

func untilNextWindow(now time.Time) time.Duration {
	next := now.Truncate(window).Add(window)
	return max(next.Sub(now), minWindowWait)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
