// Package model defines the plain data types shared by the dispatcher
// subsystem: batches, tasks, workers, and the outcome classification
// produced by a task execution. None of these types own synchronization
// themselves — the registry and worker pool packages guard them.
package model
