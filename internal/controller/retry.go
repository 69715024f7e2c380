package controller

import (
	"math"
	"math/rand"
	"time"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

// RetryCaps are the per-class, per-task attempt caps from spec.md §4.5.
var RetryCaps = map[model.FailureClass]int{
	model.FailureGeneral:     6,
	model.FailureRateLimited: 10,
	model.FailureTimeout:     6,
}

// RetryPolicy decides, for a given failure class and the task's current
// attempt count in that class, whether to retry and after what delay.
type RetryPolicy struct {
	// rng is isolated per-policy so tests can make backoff deterministic
	// without touching the global math/rand source.
	rng *rand.Rand
}

// NewRetryPolicy builds a policy seeded from the current time.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Decide reports whether a task should be retried given attempt (the
// 1-based attempt count in class after this failure was counted) and,
// if so, the backoff delay before it re-enters the queue.
func (p *RetryPolicy) Decide(class model.FailureClass, attempt int) (retry bool, delay time.Duration) {
	cap, ok := RetryCaps[class]
	if !ok || attempt > cap {
		return false, 0
	}
	return true, p.Backoff(class, attempt)
}

// Backoff computes the per-class backoff for a 1-based attempt number,
// per the exact formulas in spec.md §4.5.
func (p *RetryPolicy) Backoff(class model.FailureClass, attempt int) time.Duration {
	n := float64(attempt)
	var seconds float64

	switch class {
	case model.FailureGeneral:
		seconds = math.Pow(2, n+1) + p.uniform(0, 2.0)
	case model.FailureRateLimited:
		exponent := math.Min(6, n+1)
		seconds = math.Pow(2, exponent) + p.uniform(0, 2.0)
	case model.FailureTimeout:
		seconds = 5.0*n + p.uniform(0, 3.0)
	default:
		seconds = 1.0
	}

	return time.Duration(seconds * float64(time.Second))
}

func (p *RetryPolicy) uniform(lo, hi float64) float64 {
	return lo + p.rng.Float64()*(hi-lo)
}
