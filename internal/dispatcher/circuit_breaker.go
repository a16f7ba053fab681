package dispatcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CircuitBreaker keeps per-source breaker state in Redis so every worker
// backs off from an input host that keeps failing.
type CircuitBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewCircuitBreaker(redisClient *redis.Client, baseBackoff, maxBackoff time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		redis:       redisClient,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
}

func breakerRedisKey(target string) string { return "cb:crop:" + target }

// Open records a failure against target and starts its cooldown.
func (cb *CircuitBreaker) Open(ctx context.Context, target string) {
	key := breakerRedisKey(target)

	failuresStr, _ := cb.redis.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	backoff := cooldown(cb.baseBackoff, cb.maxBackoff, failures)
	retryAt := time.Now().Add(backoff)

	pipe := cb.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"state":     "open",
		"retry_at":  retryAt.Unix(),
		"failures":  failures,
		"opened_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, 10*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("target", target).Msg("failed to open circuit breaker")
		return
	}

	log.Warn().
		Str("target", target).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Time("retry_at", retryAt).
		Msg("circuit breaker OPENED")
}

// IsOpen reports whether target is still cooling down. Once the cooldown
// passes the breaker goes half-open and lets one job through.
func (cb *CircuitBreaker) IsOpen(ctx context.Context, target string) bool {
	key := breakerRedisKey(target)
	res, err := cb.redis.HMGet(ctx, key, "state", "retry_at").Result()
	if err != nil || len(res) != 2 {
		return false
	}
	state, _ := res[0].(string)
	if state != "open" {
		return false
	}
	retryAtStr, _ := res[1].(string)
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)
	if time.Now().Unix() >= retryAt {
		cb.redis.HSet(ctx, key, "state", "half_open")
		log.Info().Str("target", target).Msg("circuit breaker moved to HALF-OPEN")
		return false
	}
	return true
}

// Close resets target after a success.
func (cb *CircuitBreaker) Close(ctx context.Context, target string) {
	key := breakerRedisKey(target)
	state, _ := cb.redis.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}
	cb.redis.Del(ctx, key)
	log.Info().Str("target", target).Msg("circuit breaker CLOSED (reset)")
}

// cooldown doubles base per consecutive failure, capped at max.
func cooldown(base, max time.Duration, failures int) time.Duration {
	backoff := base
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	return backoff
}

// breakerTarget names the remote source behind an input reference. Local
// files have no target.
func breakerTarget(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "s3":
		return fmt.Sprintf("s3:%s", u.Host)
	case "http", "https":
		return fmt.Sprintf("http:%s", strings.ToLower(u.Host))
	}
	return ""
}
