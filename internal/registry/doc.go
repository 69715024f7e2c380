// Package registry implements the Batch Registry (C1): the sole source
// of truth for live batches, their tasks, and progress counters.
//
// All mutations of a given batch are serialized through that batch's
// mutex; readers observe a coherent snapshot (fields within one task are
// coherent). Progress counters advance only through the two events
// spec.md §4.1 names: task-finished-success and
// task-finished-terminal-failure. Scheduling a retry is never counted as
// completion. The completed counter only ever moves back in Requeue,
// which takes a Failed task's count out again when /retry_failed sends
// it back for another attempt.
//
// This mirrors the locking discipline of the teacher's
// internal/executor.DefaultParserRegistry, generalized from a read-mostly
// lookup table to a read/write batch-and-task store.
package registry
