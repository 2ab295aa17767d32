// Package server provides the optional HTTP monitoring surface: health,
// session statistics, sanitized configuration, and Prometheus metrics.
package server
