// Package observability provides an OpenTelemetry metrics extension for
// ferry consumers. MetricsExtension implements lifecycle hooks to record
// counters for received, invalid, succeeded, rejected, failed, retried and
// exhausted messages.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
