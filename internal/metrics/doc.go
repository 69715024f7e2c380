// Package metrics exposes Prometheus counters, gauges, and a histogram
// for the dispatch pipeline: outcomes per batch/worker, per-worker
// in-flight load, the adaptive dispatch interval, and retry counts per
// failure class. It is the concrete form of the progress/observability
// surface beyond the JSON snapshot endpoints.
package metrics
