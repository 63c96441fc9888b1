package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitteredLimiter_FirstWaitIsImmediate(t *testing.T) {
	l := NewJitteredLimiter(time.Hour, time.Hour)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestJitteredLimiter_WaitHonoursContext(t *testing.T) {
	l := NewJitteredLimiter(time.Hour, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, l.Wait(ctx))
}

func TestJitteredLimiter_ZeroDelay(t *testing.T) {
	l := NewJitteredLimiter(0, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func TestJitteredLimiter_SetDelay(t *testing.T) {
	l := NewJitteredLimiter(time.Second, 2*time.Second)
	l.SetDelay(3*time.Second, time.Second)

	min, max := l.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 3*time.Second, max, "max is clamped to min")
}

func TestAdaptiveRateLimiter_BacksOffAfterErrors(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	a.RecordError()
	a.RecordError()
	min, _ := a.Delays()
	assert.Equal(t, 2*time.Second, min)

	a.RecordError()
	min, max := a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)
}

func TestAdaptiveRateLimiter_RecoversToFloor(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
	for i := 0; i < 3; i++ {
		a.RecordError()
	}

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}

	min, _ := a.Delays()
	assert.Equal(t, 2*time.Second, min)
}
