package backend

import (
	"context"
	"fmt"

	"github.com/queuewatch/queuewatch/monitor/internal/config"
)

// Backend exposes the three numeric reads the poller depends on. How each
// number is obtained (list length, set cardinality, registry scan, exporter
// sample) is the implementation's concern.
type Backend interface {
	// QueueLength returns the number of pending jobs in queue.
	QueueLength(ctx context.Context, queue string) (int64, error)

	// FailedCount returns the number of failed jobs recorded for queue.
	FailedCount(ctx context.Context, queue string) (int64, error)

	// LiveWorkerCount returns the number of live workers serving scope.
	// An empty scope counts every worker.
	LiveWorkerCount(ctx context.Context, scope string) (int64, error)

	// Name is the backend identifier: rq | celery | prometheus.
	Name() string

	// Capabilities describes which reads are meaningful for this backend.
	Capabilities() Capabilities

	Close() error
}

// Capabilities tells the poller which metrics to plan for a backend.
type Capabilities struct {
	// Framework is the human-readable job framework name used in messages.
	Framework string

	// FailedJobs is false when the broker keeps no failed-job record.
	FailedJobs bool

	// WorkersPerQueue is false when workers can only be counted globally.
	WorkersPerQueue bool
}

// ReadError wraps a failed backend read. The poller treats it as "skip this
// metric for this cycle".
type ReadError struct {
	Backend string
	Op      string // "queue_length" | "failed_count" | "live_workers"
	Target  string // queue or scope; may be empty
	Err     error
}

func (e *ReadError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Backend, e.Op, e.Target, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Read operation names carried in ReadError.Op.
const (
	OpQueueLength = "queue_length"
	OpFailedCount = "failed_count"
	OpLiveWorkers = "live_workers"
)

// New returns the Backend selected by cfg.Backend.
func New(cfg config.MonitorConfig) (Backend, error) {
	switch cfg.Backend {
	case "rq":
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("backend rq: %w", err)
		}
		return NewRQ(client, cfg.ReadTimeout), nil
	case "celery":
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("backend celery: %w", err)
		}
		return NewCelery(client, cfg.ReadTimeout, cfg.Celery.WorkerPattern), nil
	case "prometheus":
		return NewPrometheus(cfg.Prometheus, cfg.ReadTimeout), nil
	default:
		return nil, fmt.Errorf("backend: unsupported type %q", cfg.Backend)
	}
}
