package alerting

import (
	"context"
	"time"

	"github.com/queuewatch/queuewatch/monitor/internal/backend"
	"github.com/queuewatch/queuewatch/monitor/internal/check"
	"github.com/queuewatch/queuewatch/monitor/internal/config"
)

// Reader reads the current value of one metric.
type Reader func(ctx context.Context) (int64, error)

// Metric is one entry of the plan evaluated every cycle.
type Metric struct {
	Key        check.Key
	Threshold  int64
	Comparator check.Comparator
	Severity   check.Severity
	Cooldown   time.Duration
	Read       Reader
}

// Plan lists the metrics to evaluate for cfg against b. Per-queue depth always
// comes first; failed jobs are planned only when the backend records them;
// workers are planned per queue or once globally depending on the backend.
func Plan(cfg config.MonitorConfig, b backend.Backend) []Metric {
	caps := b.Capabilities()
	metric := func(queue string, kind check.Kind, read Reader) Metric {
		cmp := check.AtOrAbove
		if kind == check.Workers {
			cmp = check.Below
		}
		return Metric{
			Key:        check.Key{Queue: queue, Kind: kind},
			Threshold:  cfg.Threshold(kind),
			Comparator: cmp,
			Severity:   cfg.Severity(kind),
			Cooldown:   cfg.Cooldown(kind),
			Read:       read,
		}
	}

	var out []Metric
	for _, q := range cfg.Queues {
		q := q
		if cfg.Enabled(check.Depth) {
			out = append(out, metric(q, check.Depth, func(ctx context.Context) (int64, error) {
				return b.QueueLength(ctx, q)
			}))
		}
		if cfg.Enabled(check.Failed) && caps.FailedJobs {
			out = append(out, metric(q, check.Failed, func(ctx context.Context) (int64, error) {
				return b.FailedCount(ctx, q)
			}))
		}
		if cfg.Enabled(check.Workers) && caps.WorkersPerQueue {
			out = append(out, metric(q, check.Workers, func(ctx context.Context) (int64, error) {
				return b.LiveWorkerCount(ctx, q)
			}))
		}
	}
	if cfg.Enabled(check.Workers) && !caps.WorkersPerQueue {
		out = append(out, metric("", check.Workers, func(ctx context.Context) (int64, error) {
			return b.LiveWorkerCount(ctx, "")
		}))
	}
	return out
}
