// Package dispatcher runs one pairing loop per batch: it pulls tasks
// from a retry-then-pending queue pair, pairs each with an eligible
// worker under a global permit semaphore, launches the task executor,
// and paces dispatches through a three-phase warm-up schedule combined
// with the adaptive controller's interval.
package dispatcher
