// Package observability groups the logging and metrics facilities used
// across the publishing layer.
//
// Subpackages:
//   - logging: structured slog loggers with consistent configuration
//   - metrics: centralized Prometheus metrics and record helpers
package observability
