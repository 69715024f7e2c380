package workerpool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

const (
	cooldownShort = 10 * time.Second
	cooldownLong  = 60 * time.Second
	// circuitOpenFailures is the consecutive-failure threshold at which a
	// worker's cooldown is extended from short to long (spec.md §4.2).
	circuitOpenFailures = 3
)

// Pool owns the Worker array for one batch's configured servers.
type Pool struct {
	mu      sync.Mutex
	workers []*model.Worker
	cursor  int
}

// New builds a pool from the enabled servers, defaulting each worker's
// capacity to defaultCapacity when the server did not specify one.
func New(servers []model.UpstreamServer, defaultCapacity int) *Pool {
	p := &Pool{}
	idx := 0
	for _, s := range servers {
		if !s.Enabled {
			continue
		}
		cap := s.Capacity
		if cap <= 0 {
			cap = defaultCapacity
		}
		if cap <= 0 {
			cap = 1
		}
		p.workers = append(p.workers, &model.Worker{
			Index:    idx,
			Name:     s.Name,
			BaseURL:  s.URL,
			APIKey:   s.APIKey,
			Capacity: cap,
		})
		idx++
	}
	return p
}

// Len returns the number of enabled workers in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Worker returns a copy of the worker at idx, for callers (the task
// executor) that need its base URL / API key without mutating pool state.
func (p *Pool) Worker(idx int) (model.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.workers) {
		return model.Worker{}, fmt.Errorf("workerpool: index out of range: %d", idx)
	}
	return *p.workers[idx], nil
}

// PickEligible returns the index of an eligible worker (in_flight <
// capacity and now >= cooldown_until), preferring: never-used, lower
// in-flight, fewer lifetime uses, lower failure rate, least-recently
// used. A rotating cursor breaks ties so later-indexed workers are not
// starved (spec.md §4.2).
func (p *Pool) PickEligible() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var candidates []int
	for _, w := range p.workers {
		if w.Eligible(now) {
			candidates = append(candidates, w.Index)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	p.cursor = (p.cursor + 1) % len(candidates)
	rotated := append(append([]int{}, candidates[p.cursor:]...), candidates[:p.cursor]...)

	sort.SliceStable(rotated, func(i, j int) bool {
		return p.less(p.workers[rotated[i]], p.workers[rotated[j]])
	})

	return rotated[0], true
}

// less implements the preference ordering documented on PickEligible.
func (p *Pool) less(a, b *model.Worker) bool {
	aUnused := a.LifetimeUses == 0
	bUnused := b.LifetimeUses == 0
	if aUnused != bUnused {
		return aUnused
	}
	if a.InFlight != b.InFlight {
		return a.InFlight < b.InFlight
	}
	if a.LifetimeUses != b.LifetimeUses {
		return a.LifetimeUses < b.LifetimeUses
	}
	aRate, bRate := a.FailureRate(), b.FailureRate()
	if aRate != bRate {
		return aRate < bRate
	}
	return a.LastUsedAt.Before(b.LastUsedAt)
}

// Acquire reserves one in-flight slot on the worker, bumping its
// lifetime-use and last-used bookkeeping. Callers must have already
// confirmed eligibility (typically via PickEligible) under the same
// pool lock discipline; Acquire itself re-validates the capacity bound.
func (p *Pool) Acquire(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.workers) {
		return fmt.Errorf("workerpool: index out of range: %d", idx)
	}
	w := p.workers[idx]
	if w.InFlight >= w.Capacity {
		return fmt.Errorf("workerpool: worker %d at capacity", idx)
	}
	w.InFlight++
	w.LifetimeUses++
	w.LastUsedAt = time.Now()
	return nil
}

// Release returns the in-flight slot and applies the cooldown/circuit
// policy based on outcome.
func (p *Pool) Release(idx int, outcome model.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.workers) {
		return fmt.Errorf("workerpool: index out of range: %d", idx)
	}
	w := p.workers[idx]
	if w.InFlight > 0 {
		w.InFlight--
	}
	w.TotalServiceTime += outcome.Elapsed

	if outcome.Success() {
		w.CompletedCount++
		w.ConsecutiveFailures = 0
		w.CooldownUntil = time.Time{}
		return nil
	}

	if outcome.Kind == model.OutcomeTimeout {
		w.TimeoutCount++
	} else {
		w.FailedCount++
	}

	w.ConsecutiveFailures++
	now := time.Now()
	if w.ConsecutiveFailures >= circuitOpenFailures {
		w.CooldownUntil = now.Add(cooldownLong)
	} else {
		w.CooldownUntil = now.Add(cooldownShort)
	}
	return nil
}

// Snapshot implements registry.ServerSnapshotter.
func (p *Pool) Snapshot() []model.WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	out := make([]model.WorkerStatus, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Status(now))
	}
	return out
}
