package model

import "time"

// WorkerState is the observable projection of a Worker's health and load.
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerBusy
	WorkerFull
	WorkerError
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerFull:
		return "full"
	case WorkerError:
		return "error"
	default:
		return "unknown"
	}
}

// UpstreamServer is the configuration record supplied by the client for
// one upstream TTS endpoint. Immutable within a batch.
type UpstreamServer struct {
	Name       string
	URL        string
	APIKey     string
	Enabled    bool
	Capacity   int // 0 = use the dispatcher's default concurrency
}

// Worker is the scheduler-side representation of one enabled upstream
// server. It is exclusively owned by the worker pool; the dispatcher
// only holds a non-owning index into it.
type Worker struct {
	Index    int
	Name     string
	BaseURL  string
	APIKey   string
	Capacity int

	InFlight int

	CompletedCount int
	FailedCount    int
	TimeoutCount   int
	LifetimeUses   int

	TotalServiceTime time.Duration

	ConsecutiveFailures int
	CooldownUntil        time.Time

	LastUsedAt time.Time
}

// Eligible reports whether the worker can accept a new task right now:
// in_flight < capacity AND now >= cooldown_until (spec.md §3).
func (w *Worker) Eligible(now time.Time) bool {
	return w.InFlight < w.Capacity && !now.Before(w.CooldownUntil)
}

// FailureRate returns the worker's lifetime failure rate, used as a
// secondary tiebreaker in PickEligible's preference ordering.
func (w *Worker) FailureRate() float64 {
	total := w.CompletedCount + w.FailedCount + w.TimeoutCount
	if total == 0 {
		return 0
	}
	return float64(w.FailedCount+w.TimeoutCount) / float64(total)
}

// Status projects the worker's internal state into the observable
// WorkerStatus shape served by the progress snapshot.
func (w *Worker) Status(now time.Time) WorkerStatus {
	state := WorkerIdle
	switch {
	case now.Before(w.CooldownUntil) && w.ConsecutiveFailures >= circuitOpenThreshold:
		state = WorkerError
	case w.InFlight >= w.Capacity:
		state = WorkerFull
	case w.InFlight > 0:
		state = WorkerBusy
	}

	return WorkerStatus{
		Index:            w.Index,
		Name:             w.Name,
		State:            state,
		InFlight:         w.InFlight,
		Capacity:         w.Capacity,
		CompletedCount:   w.CompletedCount,
		FailedCount:      w.FailedCount,
		TimeoutCount:     w.TimeoutCount,
		TotalServiceTime: w.TotalServiceTime,
		CooldownUntil:    w.CooldownUntil,
	}
}

const circuitOpenThreshold = 3

// WorkerStatus is the observable projection of a Worker served to the
// control plane.
type WorkerStatus struct {
	Index            int
	Name             string
	State            WorkerState
	InFlight         int
	Capacity         int
	CompletedCount   int
	FailedCount      int
	TimeoutCount     int
	TotalServiceTime time.Duration
	CooldownUntil    time.Time
}
