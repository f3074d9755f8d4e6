package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/musewave/maestro/clock"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/ratelimit"
)

// Compile-time interface check.
var _ ratelimit.Limiter = (*Limiter)(nil)

// allowScript performs the fixed-window check-and-increment in one
// round trip. It increments only when the counter is still under the
// limit, so a denied request never consumes budget, and sets the key's
// expiry on first use. Returns the counter after the call and 1/0 for
// allowed/denied.
var allowScript = redis.NewScript(`
	local count = tonumber(redis.call('GET', KEYS[1]) or '0')
	if count >= tonumber(ARGV[1]) then
		return {count, 0}
	end
	count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return {count, 1}
`)

// Limiter is a fixed-window rate limiter whose counters live in Redis,
// shared by every process pointing at the same instance. The Lua script
// makes the check and the increment a single atomic operation.
type Limiter struct {
	client redis.Cmdable
	width  time.Duration
	clk    clock.Clock
}

// NewLimiter creates a limiter with the given window width. A nil clk
// uses the real clock.
func NewLimiter(client redis.Cmdable, width time.Duration, clk clock.Clock) *Limiter {
	if width <= 0 {
		width = time.Minute
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{client: client, width: width, clk: clk}
}

// Allow implements ratelimit.Limiter.
func (l *Limiter) Allow(ctx context.Context, credID id.CredentialID, limit int) (ratelimit.Decision, error) {
	now := l.clk.Now()
	start := now.Truncate(l.width)
	key := rateKey(credID, start.Unix())

	// Expire the counter one window past its end so in-flight reads near
	// the boundary still see it.
	expiry := l.width * 2

	res, err := allowScript.Run(ctx, l.client, []string{key}, limit, expiry.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("maestro/redis: rate limit check: %w", err)
	}
	if len(res) != 2 {
		return ratelimit.Decision{}, fmt.Errorf("maestro/redis: rate limit script returned %d values", len(res))
	}

	count, allowed := res[0], res[1] == 1
	d := ratelimit.Decision{
		Allowed: allowed,
		ResetAt: start.Add(l.width),
	}
	if allowed {
		d.Remaining = limit - int(count)
		if d.Remaining < 0 {
			d.Remaining = 0
		}
	}
	return d, nil
}
