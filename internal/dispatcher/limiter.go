package dispatcher

import "context"

// GlobalLimiter is the optional process-wide concurrency cap keyed off
// GLOBAL_CONCURRENCY_LIMIT (spec.md §5 "shared resources" (c)). It is
// constructed once per process and shared across every batch's
// Dispatcher; a nil *GlobalLimiter disables the cap entirely.
type GlobalLimiter struct {
	sem chan struct{}
}

// NewGlobalLimiter returns a limiter with limit permits, or nil if limit
// is <= 0 (the "0 = disabled" default from spec.md §6).
func NewGlobalLimiter(limit int) *GlobalLimiter {
	if limit <= 0 {
		return nil
	}
	return &GlobalLimiter{sem: make(chan struct{}, limit)}
}

func (g *GlobalLimiter) acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *GlobalLimiter) release() {
	if g == nil {
		return
	}
	<-g.sem
}
