// Package history appends a one-row-per-batch audit record to a SQLite
// database once a batch finishes, for analytics and troubleshooting
// only. It carries no dispatch-time state and is never read by the
// dispatcher: a row that fails to record is logged and never blocks
// batch completion. "serve" refuses to start if the configured database
// cannot be opened.
package history
