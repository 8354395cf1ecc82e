package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/queuewatch/queuewatch/monitor/internal/config"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// newRedisClient parses the broker URL and builds a client whose socket
// timeouts match the configured read timeout.
func newRedisClient(cfg config.MonitorConfig) (*redis.Client, error) {
	raw := cfg.ResolveBrokerURL()
	opt, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	opt.DialTimeout = cfg.ReadTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.ReadTimeout
	// A monitor must not hang on a dead broker: fail the read, try next cycle.
	opt.MaxRetries = 1
	return redis.NewClient(opt), nil
}

// redisReader carries what the Redis-backed implementations share.
type redisReader struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func (r redisReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// countKeys counts keys matching pattern with a cursor-based SCAN.
func (r redisReader) countKeys(ctx context.Context, pattern string) (int64, error) {
	var n int64
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (r redisReader) Close() error {
	return r.client.Close()
}

// rqWorkerKey normalises a worker registry member to its hash key.
func rqWorkerKey(member string) string {
	if strings.HasPrefix(member, rqWorkerPrefix) {
		return member
	}
	return rqWorkerPrefix + member
}
