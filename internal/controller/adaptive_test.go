package controller

import "testing"

func TestAdaptive_StartsAtFloor(t *testing.T) {
	a := NewAdaptive()
	if got := a.Interval(); got != minInterval {
		t.Fatalf("Interval() = %v, want %v", got, minInterval)
	}
}

func TestAdaptive_NoAdjustmentBelowMinSamples(t *testing.T) {
	a := NewAdaptive()
	for i := 0; i < minSamplesForAdjustment-1; i++ {
		a.Record(false)
	}
	if got := a.Interval(); got != minInterval {
		t.Fatalf("Interval() = %v, want unchanged floor %v with < %d samples", got, minInterval, minSamplesForAdjustment)
	}
}

func TestAdaptive_HighFailureRateRaisesInterval(t *testing.T) {
	a := NewAdaptive()
	for i := 0; i < minSamplesForAdjustment; i++ {
		a.Record(false)
	}
	got := a.Interval()
	if got <= minInterval {
		t.Fatalf("Interval() = %v, want raised above floor %v after a 100%% failure window", got, minInterval)
	}
	if got > maxInterval {
		t.Fatalf("Interval() = %v, exceeds clamp max %v", got, maxInterval)
	}
}

func TestAdaptive_IntervalNeverExceedsMax(t *testing.T) {
	a := NewAdaptive()
	for i := 0; i < windowSize*20; i++ {
		a.Record(false)
	}
	if got := a.Interval(); got != maxInterval {
		t.Fatalf("Interval() = %v, want clamped at max %v after sustained failures", got, maxInterval)
	}
}

func TestAdaptive_LowFailureRateLowersIntervalBackToFloor(t *testing.T) {
	a := NewAdaptive()
	for i := 0; i < windowSize*20; i++ {
		a.Record(false)
	}
	if got := a.Interval(); got != maxInterval {
		t.Fatalf("setup: Interval() = %v, want %v before recovery", got, maxInterval)
	}

	// A long run of successes evicts the failure window (it only holds
	// the most recent windowSize samples) and should walk the interval
	// back down to its floor, never below it (spec.md §8 invariant 9).
	for i := 0; i < windowSize*50; i++ {
		a.Record(true)
	}
	if got := a.Interval(); got != minInterval {
		t.Fatalf("Interval() = %v, want back down to floor %v after sustained success", got, minInterval)
	}
}

func TestAdaptive_WindowIsBounded(t *testing.T) {
	a := NewAdaptive()
	for i := 0; i < windowSize+10; i++ {
		a.Record(true)
	}
	a.mu.Lock()
	n := len(a.window)
	a.mu.Unlock()
	if n != windowSize {
		t.Fatalf("len(window) = %d, want capped at %d", n, windowSize)
	}
}
