package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Burst(t *testing.T) {
	l := NewLimiter("test", 1, 2)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := NewLimiter("slow", 0.001, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter slow")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter("open", 0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
}

func TestHostLimiters_ReusesPerHost(t *testing.T) {
	h := NewHostLimiters(10, 1)

	a := h.For("api.unusualwhales.com")
	b := h.For("api.unusualwhales.com")
	c := h.For("example.com")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
