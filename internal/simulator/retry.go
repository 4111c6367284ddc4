package simulator

import (
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy computes exponential backoff with jitter for failed slots.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRetryPolicy(base time.Duration, seed int64) *RetryPolicy {
	return &RetryPolicy{
		BaseDelay: base,
		MaxDelay:  30 * time.Second,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Delay returns base * 2^(attempt-1) with ten percent jitter either way,
// capped at MaxDelay. Attempt counts from one.
func (r *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.MaxDelay {
			delay = r.MaxDelay
			break
		}
	}

	r.mu.Lock()
	jitter := (r.rng.Float64()*2 - 1) * 0.1
	r.mu.Unlock()

	jittered := time.Duration(float64(delay) * (1 + jitter))
	if jittered > r.MaxDelay {
		jittered = r.MaxDelay
	}
	return jittered
}
