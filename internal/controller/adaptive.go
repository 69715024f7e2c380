package controller

import "sync"

const (
	windowSize = 20

	minSamplesForAdjustment = 5

	highFailureRate = 0.20
	lowFailureRate  = 0.10

	minInterval = 0.2
	maxInterval = 1.5

	increaseStep = 0.1
	decreaseStep = 0.05

	// floorForIncrease is the base the controller raises from before
	// adding increaseStep, per spec.md §4.5's
	// min(1.5, max(adaptive_interval, 0.5) + 0.1).
	floorForIncrease = 0.5
)

// Adaptive maintains the bounded outcome window and the resulting
// dispatch interval (spec.md §4.5, §8 invariant 9: always in [0.2, 1.5]).
type Adaptive struct {
	mu       sync.Mutex
	window   []bool // true = success
	interval float64
}

// NewAdaptive creates a controller with the interval at its floor.
func NewAdaptive() *Adaptive {
	return &Adaptive{interval: minInterval}
}

// Record appends one outcome (success/failure) and recomputes the
// interval when at least minSamplesForAdjustment samples are available.
func (a *Adaptive) Record(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, success)
	if len(a.window) > windowSize {
		a.window = a.window[len(a.window)-windowSize:]
	}

	if len(a.window) < minSamplesForAdjustment {
		return
	}

	failureRate := a.failureRateLocked()

	switch {
	case failureRate >= highFailureRate:
		raised := max(a.interval, floorForIncrease) + increaseStep
		if raised > maxInterval {
			raised = maxInterval
		}
		if raised > a.interval {
			a.interval = raised
		}
	case failureRate <= lowFailureRate && a.interval > minInterval:
		lowered := a.interval - decreaseStep
		if lowered < minInterval {
			lowered = minInterval
		}
		if lowered < a.interval {
			a.interval = lowered
		}
	}
}

// Interval returns the current adaptive interval in seconds.
func (a *Adaptive) Interval() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

// FailureRate returns the failure rate over the current window (for
// observability only; does not mutate state).
func (a *Adaptive) FailureRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failureRateLocked()
}

func (a *Adaptive) failureRateLocked() float64 {
	if len(a.window) == 0 {
		return 0
	}
	failures := 0
	for _, s := range a.window {
		if !s {
			failures++
		}
	}
	return float64(failures) / float64(len(a.window))
}
