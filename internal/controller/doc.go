// Package controller implements the Adaptive Controller & Retry Policy
// (C5): a sliding window over recent task outcomes that tunes the
// dispatcher's pacing interval, and the per-failure-class retry caps and
// backoff formulas.
//
// Grounded on V5.1's update_rate_metrics/rate_limit_counters in
// original_source/app.py, translated from Python's nonlocal-closure
// style into a small stateful Go type guarded by a mutex.
package controller
