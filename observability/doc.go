// Package observability provides an OpenTelemetry metrics extension for
// delayed. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for reservations, completions, retries, permanent
// failures and released locks.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
