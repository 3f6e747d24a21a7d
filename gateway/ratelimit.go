// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"promptgate/gateway/shared/logger"
)

// RateLimitWindow is the fixed admission window shared by all tiers.
const RateLimitWindow = 15 * time.Minute

// Tier is a named rate-limit bucket. Tier selection is static per route.
type Tier string

const (
	// TierAuth covers register/login (most expensive to abuse).
	TierAuth Tier = "auth"

	// TierChain covers the multi-provider chain endpoint.
	TierChain Tier = "chain"

	// TierProvider covers single-provider inference endpoints.
	TierProvider Tier = "provider"

	// TierGeneral covers everything else.
	TierGeneral Tier = "general"
)

// tierLimits is the max admitted requests per window for each tier.
var tierLimits = map[Tier]int{
	TierAuth:     5,
	TierChain:    10,
	TierProvider: 30,
	TierGeneral:  100,
}

// Decision is the outcome of one admission check. Rejection is terminal
// for that call: no queueing, no backoff scheduling.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter admits or rejects a request for a (client key, tier) pair.
// Implementations must count atomically under concurrent bursts from the
// same key.
type RateLimiter interface {
	Allow(ctx context.Context, clientKey string, tier Tier) Decision
}

// rateLimitEntry tracks one (key, tier) counter within the current window.
type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// MemoryRateLimiter is the in-process fixed-window limiter. Counters are
// created lazily on first request and reset on the first call observed
// after window expiry. Suitable for a single gateway instance; use the
// redis limiter when running more than one.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

// NewMemoryRateLimiter creates an in-memory limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
	}
}

// Allow implements RateLimiter.
func (l *MemoryRateLimiter) Allow(_ context.Context, clientKey string, tier Tier) Decision {
	limit := tierLimits[tier]
	key := string(tier) + ":" + clientKey
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[key]
	if !exists || now.After(entry.resetTime) {
		// New key, or first call after window expiry: counter and window
		// reset together.
		l.entries[key] = &rateLimitEntry{
			count:     1,
			resetTime: now.Add(RateLimitWindow),
		}
		return Decision{Allowed: true, Remaining: limit - 1}
	}

	if entry.count >= limit {
		// Rejected without incrementing.
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: entry.resetTime.Sub(now),
		}
	}

	entry.count++
	return Decision{Allowed: true, Remaining: limit - entry.count}
}

// RedisRateLimiter shares fixed-window counters across gateway instances.
// On redis errors it fails open through the in-memory fallback so a cache
// outage degrades limiting accuracy rather than availability.
type RedisRateLimiter struct {
	client   *redis.Client
	fallback *MemoryRateLimiter
	log      *logger.Logger
}

// NewRedisRateLimiter connects to redis and verifies the connection.
func NewRedisRateLimiter(redisURL string) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRateLimiter{
		client:   client,
		fallback: NewMemoryRateLimiter(),
		log:      logger.New("ratelimit"),
	}, nil
}

// Allow implements RateLimiter using INCR with a window-length TTL set on
// the first hit.
func (l *RedisRateLimiter) Allow(ctx context.Context, clientKey string, tier Tier) Decision {
	limit := tierLimits[tier]
	key := fmt.Sprintf("ratelimit:%s:%s", tier, clientKey)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn(clientKey, "", "redis rate limit check failed, failing open to memory limiter",
			map[string]interface{}{"error": err.Error()})
		return l.fallback.Allow(ctx, clientKey, tier)
	}

	count := incr.Val()
	if count == 1 || ttl.Val() < 0 {
		// First hit in this window (or key without expiry after a restart).
		l.client.Expire(ctx, key, RateLimitWindow)
	}

	if count > int64(limit) {
		retryAfter := ttl.Val()
		if retryAfter < 0 {
			retryAfter = RateLimitWindow
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	return Decision{Allowed: true, Remaining: limit - int(count)}
}

// Close releases the redis connection.
func (l *RedisRateLimiter) Close() error {
	return l.client.Close()
}
