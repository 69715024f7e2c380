package controller

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

func deterministicPolicy() *RetryPolicy {
	return &RetryPolicy{rng: rand.New(rand.NewSource(1))}
}

func TestRetryPolicy_DecideCapsPerClass(t *testing.T) {
	p := deterministicPolicy()

	for class, cap := range RetryCaps {
		if retry, _ := p.Decide(class, cap); !retry {
			t.Fatalf("Decide(%v, %d) = false, want true at the cap", class, cap)
		}
		if retry, _ := p.Decide(class, cap+1); retry {
			t.Fatalf("Decide(%v, %d) = true, want false past the cap", class, cap+1)
		}
	}
}

func TestRetryPolicy_DecideUnknownClassNeverRetries(t *testing.T) {
	p := deterministicPolicy()
	if retry, _ := p.Decide(model.FailureClass(99), 1); retry {
		t.Fatal("Decide for an unmapped failure class returned true")
	}
}

func TestRetryPolicy_BackoffGeneral(t *testing.T) {
	p := deterministicPolicy()
	// general: 2^(n+1) + uniform(0,2); attempt 1 => base 4s, bounded [4,6)s.
	d := p.Backoff(model.FailureGeneral, 1)
	if d < 4*time.Second || d >= 6*time.Second {
		t.Fatalf("Backoff(general, 1) = %v, want in [4s, 6s)", d)
	}
}

func TestRetryPolicy_BackoffRateLimitedExponentClamped(t *testing.T) {
	p := deterministicPolicy()
	// rate-limited: exponent = min(6, n+1); attempt 10 => exponent 6 => base 64s.
	d := p.Backoff(model.FailureRateLimited, 10)
	if d < 64*time.Second || d >= 66*time.Second {
		t.Fatalf("Backoff(rate_limited, 10) = %v, want in [64s, 66s) once the exponent clamps at 6", d)
	}
}

func TestRetryPolicy_BackoffTimeoutLinear(t *testing.T) {
	p := deterministicPolicy()
	// timeout: 5*n + uniform(0,3); attempt 2 => base 10s, bounded [10,13)s.
	d := p.Backoff(model.FailureTimeout, 2)
	if d < 10*time.Second || d >= 13*time.Second {
		t.Fatalf("Backoff(timeout, 2) = %v, want in [10s, 13s)", d)
	}
}
