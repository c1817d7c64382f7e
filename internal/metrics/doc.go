// Package metrics defines Prometheus metrics for the rate limiting gates,
// covering admission decisions, tracked clients, swept entries and
// statistics sink failures.
package metrics
