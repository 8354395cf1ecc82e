package alerting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/queuewatch/queuewatch/monitor/internal/check"
	"github.com/queuewatch/queuewatch/monitor/internal/notify"
)

// Dispatched records one alert the poller attempted to deliver.
type Dispatched struct {
	Alert   Alert
	Message string
	At      time.Time

	// Err is the delivery failure, nil when the sink accepted the message.
	Err error
}

// Cycle is the report of one poll cycle.
type Cycle struct {
	At     time.Time
	Checks []check.Check
	Alerts []Dispatched

	// Suppressed counts alert-worthy checks silenced by their cooldown.
	Suppressed int
}

// Options configures a Poller. Sink and Interval are required.
type Options struct {
	Metrics  []Metric
	Sink     notify.Sink
	Interval time.Duration

	// Framework names the job system in global worker alerts ("RQ", "Celery").
	Framework string

	// Observer, when set, receives every cycle report after it completes.
	Observer func(Cycle)

	Logger *slog.Logger
	Now    func() time.Time
}

// Poller runs the periodic check cycle. Its State is touched only from the
// goroutine calling Run or RunCycle.
type Poller struct {
	metrics   []Metric
	sink      notify.Sink
	interval  time.Duration
	framework string
	observer  func(Cycle)
	log       *slog.Logger
	now       func() time.Time

	state  *State
	reload chan []Metric
}

// New creates a Poller from opts.
func New(opts Options) *Poller {
	p := &Poller{
		metrics:   opts.Metrics,
		sink:      opts.Sink,
		interval:  opts.Interval,
		framework: opts.Framework,
		observer:  opts.Observer,
		log:       opts.Logger,
		now:       opts.Now,
		state:     NewState(),
		reload:    make(chan []Metric, 1),
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.framework == "" {
		p.framework = "queue"
	}
	return p
}

// State exposes the alert bookkeeping. Callers must not use it while Run is
// active.
func (p *Poller) State() *State { return p.state }

// Reload replaces the metric plan. The new plan takes effect at the start of
// the next cycle; a reload not yet picked up is superseded. Cooldown
// bookkeeping is kept.
func (p *Poller) Reload(metrics []Metric) {
	for {
		select {
		case p.reload <- metrics:
			return
		default:
		}
		select {
		case <-p.reload:
		default:
		}
	}
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.New("alerting: interval must be positive")
	}
	p.log.Info("alerting: poller started", "interval", p.interval.String(), "metrics", len(p.metrics))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunCycle(ctx, p.now())
	for {
		select {
		case <-ctx.Done():
			p.log.Info("alerting: poller stopped")
			return nil
		case <-ticker.C:
			p.RunCycle(ctx, p.now())
		}
	}
}

// RunCycle evaluates every planned metric once at now, dispatching alerts that
// are out of cooldown. A failed read is logged and counted as ok; a failed
// dispatch is logged and leaves the cooldown untouched so the next cycle
// retries it.
func (p *Poller) RunCycle(ctx context.Context, now time.Time) Cycle {
	p.applyReload()

	cycle := Cycle{At: now, Checks: make([]check.Check, 0, len(p.metrics))}
	for _, m := range p.metrics {
		if ctx.Err() != nil {
			break
		}
		c := p.evaluate(ctx, m, now)
		cycle.Checks = append(cycle.Checks, c)

		if !c.Status.AlertWorthy() {
			continue
		}
		if !p.state.ShouldAlert(m.Key, m.Cooldown, now) {
			cycle.Suppressed++
			p.log.Debug("alerting: alert suppressed", "key", m.Key.String(), "cooldown", m.Cooldown.String())
			continue
		}

		a := AlertFor(c, p.framework)
		msg := Format(a)
		err := p.send(ctx, msg)
		cycle.Alerts = append(cycle.Alerts, Dispatched{Alert: a, Message: msg, At: now, Err: err})
		if err != nil {
			p.log.Error("alerting: dispatch failed", "key", m.Key.String(), "err", err)
			continue
		}
		p.state.Record(m.Key, now)
		p.log.Warn("alerting: alert dispatched",
			"key", m.Key.String(),
			"severity", c.Status.String(),
			"value", c.Value,
			"threshold", c.Threshold,
		)
	}

	p.log.Debug("alerting: cycle complete",
		"checks", len(cycle.Checks),
		"alerts", len(cycle.Alerts),
		"suppressed", cycle.Suppressed,
	)
	if p.observer != nil {
		p.observer(cycle)
	}
	return cycle
}

// Dispatch formats c as an alert and sends it, bypassing the cooldown.
func (p *Poller) Dispatch(ctx context.Context, c check.Check) error {
	return p.send(ctx, Format(AlertFor(c, p.framework)))
}

func (p *Poller) evaluate(ctx context.Context, m Metric, now time.Time) check.Check {
	v, err := m.Read(ctx)
	if err != nil {
		p.log.Warn("alerting: read failed",
			"queue", m.Key.Queue,
			"kind", m.Key.Kind.String(),
			"err", err,
		)
		c := check.Unread(m.Key, m.Threshold, m.Comparator, err)
		c.CheckedAt = now
		return c
	}
	c := check.CheckMetric(m.Key, v, m.Threshold, m.Comparator, m.Severity)
	c.CheckedAt = now
	return c
}

// send delivers msg and normalises failures to *notify.DispatchError.
func (p *Poller) send(ctx context.Context, msg string) error {
	err := p.sink.Send(ctx, msg)
	if err == nil {
		return nil
	}
	var de *notify.DispatchError
	if errors.As(err, &de) {
		return err
	}
	return &notify.DispatchError{Err: err}
}

func (p *Poller) applyReload() {
	select {
	case m := <-p.reload:
		p.metrics = m
		p.log.Info("alerting: plan reloaded", "metrics", len(m))
	default:
	}
}
