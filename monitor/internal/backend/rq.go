package backend

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RQ key layout.
const (
	rqQueuePrefix   = "rq:queue:"
	rqFailedSuffix  = ":failed"
	rqWorkersPrefix = "rq:workers:"
	rqWorkerPrefix  = "rq:worker:"
	rqAllWorkers    = "rq:workers"

	rqStateField   = "state"
	rqStateStopped = "stopped"
)

// RQ reads Python RQ queues straight from Redis.
//
//	depth   LLEN  rq:queue:<q>
//	failed  SCARD rq:queue:<q>:failed
//	workers members of rq:workers:<q> whose rq:worker:<name> hash still
//	        exists and whose state, if set, is not "stopped"
type RQ struct {
	redisReader
}

// NewRQ wraps an existing client. timeout bounds every read.
func NewRQ(client redis.UniversalClient, timeout time.Duration) *RQ {
	return &RQ{redisReader{client: client, timeout: timeout}}
}

func (b *RQ) Name() string { return "rq" }

func (b *RQ) Capabilities() Capabilities {
	return Capabilities{Framework: "RQ", FailedJobs: true, WorkersPerQueue: true}
}

func (b *RQ) QueueLength(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	n, err := b.client.LLen(ctx, rqQueuePrefix+queue).Result()
	if err != nil {
		return 0, &ReadError{Backend: b.Name(), Op: OpQueueLength, Target: queue, Err: err}
	}
	return n, nil
}

func (b *RQ) FailedCount(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	n, err := b.client.SCard(ctx, rqQueuePrefix+queue+rqFailedSuffix).Result()
	if err != nil {
		return 0, &ReadError{Backend: b.Name(), Op: OpFailedCount, Target: queue, Err: err}
	}
	return n, nil
}

// LiveWorkerCount counts registered workers of scope that are not stopped.
// Registry entries whose worker hash has expired are dead and not counted.
func (b *RQ) LiveWorkerCount(ctx context.Context, scope string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	registry := rqAllWorkers
	if scope != "" {
		registry = rqWorkersPrefix + scope
	}
	members, err := b.client.SMembers(ctx, registry).Result()
	if err != nil {
		return 0, &ReadError{Backend: b.Name(), Op: OpLiveWorkers, Target: scope, Err: err}
	}

	var alive int64
	for _, m := range members {
		// An empty reply means the hash expired. A hash without a state
		// field belongs to a worker that has not reported one yet.
		fields, err := b.client.HGetAll(ctx, rqWorkerKey(m)).Result()
		if err != nil {
			return 0, &ReadError{Backend: b.Name(), Op: OpLiveWorkers, Target: scope, Err: err}
		}
		if len(fields) == 0 {
			continue
		}
		if fields[rqStateField] != rqStateStopped {
			alive++
		}
	}
	return alive, nil
}
