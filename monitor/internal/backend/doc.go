// Package backend provides the queue readers the poller depends on. Each
// implementation answers three numeric questions (queue length, failed-job
// count, live-worker count) and wraps any failure in a *ReadError.
//
// Implemented backends: RQ (rq.go) and Celery (celery.go) read Redis through
// go-redis; Prometheus (prometheus.go) parses an exporter's text exposition.
// Factory: New(config.MonitorConfig) returns the configured Backend.
package backend
