package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowEnforcesLimit(t *testing.T) {
	limiter := NewSlidingWindowLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, time.Minute)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, "a")
	assert.True(t, allowed)

	allowed, _ = limiter.Allow(ctx, "b")
	assert.True(t, allowed)

	allowed, _ = limiter.Allow(ctx, "a")
	assert.False(t, allowed)
}

func TestSlidingWindowRecoversAfterWindow(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, "k")
	require.True(t, allowed)

	allowed, _ = limiter.Allow(ctx, "k")
	require.False(t, allowed)

	time.Sleep(30 * time.Millisecond)

	allowed, _ = limiter.Allow(ctx, "k")
	assert.True(t, allowed)
}

func TestResetClearsKey(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, time.Minute)
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "k")
	require.NoError(t, limiter.Reset(ctx, "k"))

	allowed, _ := limiter.Allow(ctx, "k")
	assert.True(t, allowed)
}

func TestIPAndUserLimitersDoNotCollide(t *testing.T) {
	ipLimiter := NewIPRateLimiter(1)
	userLimiter := NewUserRateLimiter(1)
	ctx := context.Background()

	allowed, _ := ipLimiter.Allow(ctx, "10.0.0.1")
	assert.True(t, allowed)

	allowed, _ = userLimiter.Allow(ctx, "10.0.0.1")
	assert.True(t, allowed)
}
