package backend

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Celery reads a Celery broker on Redis. Queues are plain lists named after
// the queue; live workers are approximated by the keys their control
// mailboxes (pidbox) leave behind.
type Celery struct {
	redisReader
	workerPattern string
}

// NewCelery wraps an existing client. workerPattern is the SCAN match
// pattern for live-worker keys.
func NewCelery(client redis.UniversalClient, timeout time.Duration, workerPattern string) *Celery {
	return &Celery{
		redisReader:   redisReader{client: client, timeout: timeout},
		workerPattern: workerPattern,
	}
}

func (b *Celery) Name() string { return "celery" }

func (b *Celery) Capabilities() Capabilities {
	return Capabilities{Framework: "Celery", FailedJobs: false, WorkersPerQueue: false}
}

func (b *Celery) QueueLength(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	n, err := b.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, &ReadError{Backend: b.Name(), Op: OpQueueLength, Target: queue, Err: err}
	}
	return n, nil
}

// FailedCount is always 0: the broker does not keep failed tasks, a result
// backend does.
func (b *Celery) FailedCount(context.Context, string) (int64, error) {
	return 0, nil
}

// LiveWorkerCount ignores scope; pidbox keys do not say which queues a
// worker consumes.
func (b *Celery) LiveWorkerCount(ctx context.Context, _ string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	n, err := b.countKeys(ctx, b.workerPattern)
	if err != nil {
		return 0, &ReadError{Backend: b.Name(), Op: OpLiveWorkers, Err: err}
	}
	return n, nil
}
