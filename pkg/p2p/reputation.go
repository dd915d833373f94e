package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// peerTokenBucketScript is an atomic Redis token-bucket algorithm keyed
// by remote peer ID: refill continuously by rate, gate a message's
// admission on having at least one token.
//
// KEYS[1] = bucket key ("p2p:limiter:<peer id>")
// ARGV[1] = refill rate (messages per second)
// ARGV[2] = bucket capacity (burst allowance)
// ARGV[3] = cost (tokens this message consumes, normally 1)
// ARGV[4] = current unix time in seconds, floating point
var peerTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 120)

return allowed
`)

// PeerLimiter rate-limits inbound gossip and request-response traffic
// per remote peer, backed by a Redis token bucket so the limit is
// shared across every node process reading from the same Redis instance
// (useful when several Homestar nodes sit behind one reputation store).
type PeerLimiter struct {
	client   *redis.Client
	ratePerS float64
	burst    float64
}

// NewPeerLimiter builds a PeerLimiter allowing up to burst messages at
// once, refilling at ratePerSecond messages/sec thereafter.
func NewPeerLimiter(client *redis.Client, ratePerSecond, burst float64) *PeerLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &PeerLimiter{client: client, ratePerS: ratePerSecond, burst: burst}
}

// Allow reports whether a message from peerID may be admitted right
// now, consuming one token if so.
func (l *PeerLimiter) Allow(ctx context.Context, peerID string) (bool, error) {
	if l == nil {
		return true, nil
	}
	key := fmt.Sprintf("p2p:limiter:%s", peerID)
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := peerTokenBucketScript.Run(ctx, l.client, []string{key}, l.ratePerS, l.burst, 1, now).Int64()
	if err != nil {
		return false, fmt.Errorf("p2p: peer limiter: %w", err)
	}
	return res == 1, nil
}
