package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/observability/metrics"
)

const keyCouponAttempts = "coupon:attempts:%s"

// CouponAttemptLimiter throttles coupon validation per client so codes
// cannot be enumerated. A nil or disabled limiter allows everything.
type CouponAttemptLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	metrics *metrics.Metrics
}

func NewCouponAttemptLimiter(client *redis.Client, cfg config.Config, m *metrics.Metrics) *CouponAttemptLimiter {
	if client == nil || cfg.RateLimit.CouponAttemptRate <= 0 || cfg.RateLimit.CouponAttemptBurst <= 0 {
		return nil
	}
	return &CouponAttemptLimiter{
		bucket:  NewTokenBucket(client),
		rate:    cfg.RateLimit.CouponAttemptRate,
		burst:   cfg.RateLimit.CouponAttemptBurst,
		metrics: m,
	}
}

func (l *CouponAttemptLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *CouponAttemptLimiter) Allow(ctx context.Context, clientKey string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCouponAttempts, clientKey), l.rate, l.burst)
	if err != nil {
		// fail open: a redis outage must not block checkout
		return true, err
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "coupon_validate", "token_bucket_empty")
		return false, nil
	}
	l.metrics.RecordRateLimitAllowed(ctx, "coupon_validate")
	return true, nil
}
