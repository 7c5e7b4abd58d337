// Package observability provides structured logging and Prometheus metrics
// for the dashboard.
//
// Loggers are plain *zap.Logger values built from configuration. Metrics live
// on their own registry so tests can create as many collectors as they need;
// a nil *Metrics is valid and records nothing.
package observability
