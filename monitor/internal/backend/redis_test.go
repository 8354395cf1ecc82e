package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/queuewatch/queuewatch/monitor/internal/config"
)

// newRedis starts an in-memory Redis and returns a client connected to it.
func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func seed(t *testing.T, cmds ...func(context.Context) error) {
	t.Helper()
	for _, c := range cmds {
		if err := c(context.Background()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestRQ_QueueLength(t *testing.T) {
	_, client := newRedis(t)
	seed(t, func(ctx context.Context) error {
		return client.RPush(ctx, "rq:queue:default", "job-1", "job-2", "job-3").Err()
	})

	b := NewRQ(client, time.Second)
	n, err := b.QueueLength(context.Background(), "default")
	if err != nil {
		t.Fatalf("QueueLength() error = %v", err)
	}
	if n != 3 {
		t.Errorf("QueueLength = %d, want 3", n)
	}

	n, err = b.QueueLength(context.Background(), "empty")
	if err != nil || n != 0 {
		t.Errorf("QueueLength(empty) = %d, %v; want 0, nil", n, err)
	}
}

func TestRQ_FailedCount(t *testing.T) {
	_, client := newRedis(t)
	seed(t, func(ctx context.Context) error {
		return client.SAdd(ctx, "rq:queue:high:failed", "job-a", "job-b").Err()
	})

	n, err := NewRQ(client, time.Second).FailedCount(context.Background(), "high")
	if err != nil {
		t.Fatalf("FailedCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("FailedCount = %d, want 2", n)
	}
}

func TestRQ_LiveWorkerCount(t *testing.T) {
	_, client := newRedis(t)
	seed(t,
		func(ctx context.Context) error {
			return client.SAdd(ctx, "rq:workers:default",
				"rq:worker:busy", "rq:worker:idle", "rq:worker:stopped", "rq:worker:expired", "bare").Err()
		},
		func(ctx context.Context) error { return client.HSet(ctx, "rq:worker:busy", "state", "busy").Err() },
		func(ctx context.Context) error { return client.HSet(ctx, "rq:worker:idle", "state", "idle").Err() },
		func(ctx context.Context) error { return client.HSet(ctx, "rq:worker:stopped", "state", "stopped").Err() },
		func(ctx context.Context) error { return client.HSet(ctx, "rq:worker:bare", "state", "idle").Err() },
	)

	n, err := NewRQ(client, time.Second).LiveWorkerCount(context.Background(), "default")
	if err != nil {
		t.Fatalf("LiveWorkerCount() error = %v", err)
	}
	// busy, idle and bare are alive; stopped is stopped; expired has no hash.
	if n != 3 {
		t.Errorf("LiveWorkerCount = %d, want 3", n)
	}
}

func TestRQ_LiveWorkerCount_HashWithoutState(t *testing.T) {
	_, client := newRedis(t)
	seed(t,
		func(ctx context.Context) error {
			return client.SAdd(ctx, "rq:workers:default", "rq:worker:starting", "rq:worker:gone").Err()
		},
		func(ctx context.Context) error {
			return client.HSet(ctx, "rq:worker:starting", "birth", "2026-03-01T12:00:00Z").Err()
		},
	)

	n, err := NewRQ(client, time.Second).LiveWorkerCount(context.Background(), "default")
	if err != nil {
		t.Fatalf("LiveWorkerCount() error = %v", err)
	}
	// starting has a hash but no state yet; gone has no hash at all.
	if n != 1 {
		t.Errorf("LiveWorkerCount = %d, want 1", n)
	}
}

func TestRQ_LiveWorkerCount_GlobalRegistry(t *testing.T) {
	_, client := newRedis(t)
	seed(t,
		func(ctx context.Context) error { return client.SAdd(ctx, "rq:workers", "rq:worker:w1").Err() },
		func(ctx context.Context) error { return client.HSet(ctx, "rq:worker:w1", "state", "idle").Err() },
	)

	n, err := NewRQ(client, time.Second).LiveWorkerCount(context.Background(), "")
	if err != nil || n != 1 {
		t.Errorf("LiveWorkerCount(\"\") = %d, %v; want 1, nil", n, err)
	}
}

func TestRQ_NoWorkers(t *testing.T) {
	_, client := newRedis(t)
	n, err := NewRQ(client, time.Second).LiveWorkerCount(context.Background(), "low")
	if err != nil || n != 0 {
		t.Errorf("LiveWorkerCount = %d, %v; want 0, nil", n, err)
	}
}

func TestRQ_ReadErrorWrapsCause(t *testing.T) {
	mr, client := newRedis(t)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	_, err := NewRQ(client, time.Second).QueueLength(context.Background(), "default")
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ReadError, got %T (%v)", err, err)
	}
	if re.Backend != "rq" || re.Op != OpQueueLength || re.Target != "default" {
		t.Errorf("unexpected ReadError fields: %+v", re)
	}
}

func TestCelery_QueueLength(t *testing.T) {
	_, client := newRedis(t)
	seed(t, func(ctx context.Context) error {
		return client.LPush(ctx, "celery", "t1", "t2").Err()
	})

	n, err := NewCelery(client, time.Second, config.DefaultWorkerPattern).QueueLength(context.Background(), "celery")
	if err != nil || n != 2 {
		t.Errorf("QueueLength = %d, %v; want 2, nil", n, err)
	}
}

func TestCelery_LiveWorkerCount(t *testing.T) {
	_, client := newRedis(t)
	seed(t,
		func(ctx context.Context) error { return client.Set(ctx, "celery:w1:pidbox:a", "1", 0).Err() },
		func(ctx context.Context) error { return client.Set(ctx, "celery:w2:pidbox:b", "1", 0).Err() },
		func(ctx context.Context) error { return client.Set(ctx, "unrelated", "1", 0).Err() },
	)

	b := NewCelery(client, time.Second, config.DefaultWorkerPattern)
	n, err := b.LiveWorkerCount(context.Background(), "ignored")
	if err != nil || n != 2 {
		t.Errorf("LiveWorkerCount = %d, %v; want 2, nil", n, err)
	}
}

func TestCelery_FailedCountAlwaysZero(t *testing.T) {
	_, client := newRedis(t)
	b := NewCelery(client, time.Second, config.DefaultWorkerPattern)
	if n, err := b.FailedCount(context.Background(), "celery"); n != 0 || err != nil {
		t.Errorf("FailedCount = %d, %v; want 0, nil", n, err)
	}
	if b.Capabilities().FailedJobs || b.Capabilities().WorkersPerQueue {
		t.Errorf("celery capabilities: got %+v", b.Capabilities())
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, name := range []string{"rq", "celery"} {
		cfg := config.Default().Monitor
		cfg.Backend = name
		cfg.BrokerURL = "redis://" + mr.Addr()

		b, err := New(cfg)
		if err != nil {
			t.Fatalf("New(%s) error = %v", name, err)
		}
		if b.Name() != name {
			t.Errorf("New(%s).Name() = %q", name, b.Name())
		}
		if _, err := b.QueueLength(context.Background(), "default"); err != nil {
			t.Errorf("%s QueueLength against miniredis: %v", name, err)
		}
		b.Close()
	}
}

func TestNew_BadBrokerURL(t *testing.T) {
	cfg := config.Default().Monitor
	cfg.BrokerURL = "amqp://guest@localhost"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for non-redis broker url")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default().Monitor
	cfg.Backend = "sidekiq"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
