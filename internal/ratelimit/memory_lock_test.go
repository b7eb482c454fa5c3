package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExcludesUntilExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	locker := NewMemoryLocker(clk)

	token, ok, err := locker.TryLock(ctx, "analysis:face:r1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "analysis:face:r1", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "analysis:face:r1", "someone-else"))
	_, ok, _ = locker.TryLock(ctx, "analysis:face:r1", 5*time.Minute)
	assert.False(t, ok, "foreign token must not release the lease")

	clk.Advance(5 * time.Minute)
	_, ok, _ = locker.TryLock(ctx, "analysis:face:r1", 5*time.Minute)
	assert.True(t, ok, "expired lease is free again")

	assert.NoError(t, locker.Release(ctx, "analysis:face:r1", token))
}

func TestMemoryLockerReleaseFreesKey(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker(nil)

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, locker.Release(ctx, "k", token))

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
}

func TestDisabledCouponLimiterAllows(t *testing.T) {
	var limiter *CouponAttemptLimiter
	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, NewLocker(nil))
	assert.IsType(t, &MemoryLocker{}, NewLease(nil, nil))
}
