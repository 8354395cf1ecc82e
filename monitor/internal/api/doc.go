// Package api implements the read-only HTTP status API: health, the checks of
// the latest cycle, the alert history, a combined snapshot and a Prometheus
// text exposition of the same data.
//
// All routes accept GET only and answer JSON, except /metrics.
package api
