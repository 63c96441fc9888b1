package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitteredLimiter spaces actions at least minDelay apart using a token bucket
// and adds a random extra pause of up to maxDelay-minDelay.
type JitteredLimiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	mu       sync.Mutex
	rnd      *rand.Rand
}

func NewJitteredLimiter(minDelay, maxDelay time.Duration) *JitteredLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitteredLimiter{
		limiter:  rate.NewLimiter(every(minDelay), 1),
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func (r *JitteredLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	jitter := r.jitter()
	if jitter <= 0 {
		return nil
	}

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *JitteredLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max < min {
		max = min
	}
	r.minDelay = min
	r.maxDelay = max
	r.limiter.SetLimit(every(min))
}

// Delays returns the current bounds.
func (r *JitteredLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *JitteredLimiter) jitter() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	delta := r.maxDelay - r.minDelay
	if delta <= 0 {
		return 0
	}
	return time.Duration(r.rnd.Int63n(int64(delta)))
}

// Feedback is implemented by limiters that adapt to request outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// AdaptiveRateLimiter backs off after repeated failures and slowly recovers
// after a run of successes.
type AdaptiveRateLimiter struct {
	*JitteredLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
	ceiling       time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		JitteredLimiter: NewJitteredLimiter(minDelay, maxDelay),
		maxErrorCount:   3,
		backoffFactor:   1.5,
		floor:           minDelay,
		ceiling:         2 * time.Minute,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	a.successCount++
	a.errorCount = 0
	if a.successCount <= 5 {
		a.mu.Unlock()
		return
	}
	a.successCount = 0
	newMin := time.Duration(float64(a.minDelay) * 0.9)
	if newMin < a.floor {
		newMin = a.floor
	}
	max := a.maxDelay
	a.mu.Unlock()

	a.SetDelay(newMin, max)
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	a.errorCount++
	a.successCount = 0
	if a.errorCount < a.maxErrorCount {
		a.mu.Unlock()
		return
	}
	a.errorCount = 0
	newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
	newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)
	if newMin > a.ceiling/2 {
		newMin = a.ceiling / 2
	}
	if newMax > a.ceiling {
		newMax = a.ceiling
	}
	a.mu.Unlock()

	a.SetDelay(newMin, newMax)
}
