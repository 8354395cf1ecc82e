package alerting

import (
	"fmt"

	"github.com/queuewatch/queuewatch/monitor/internal/check"
)

// Alert is one of DepthAlert, FailedJobsAlert or WorkerAlert.
type Alert interface {
	Key() check.Key
	Severity() check.Severity
	isAlert()
}

// DepthAlert fires when a queue holds too many pending jobs.
type DepthAlert struct {
	Queue     string
	Depth     int64
	Threshold int64
	Level     check.Severity
}

// FailedJobsAlert fires when a queue has failed jobs.
type FailedJobsAlert struct {
	Queue string
	Count int64
	Level check.Severity
}

// WorkerAlert fires when no live worker serves a queue. An empty Queue means
// no worker of Framework is alive at all.
type WorkerAlert struct {
	Queue     string
	Framework string
	Level     check.Severity
}

func (a DepthAlert) Key() check.Key      { return check.Key{Queue: a.Queue, Kind: check.Depth} }
func (a FailedJobsAlert) Key() check.Key { return check.Key{Queue: a.Queue, Kind: check.Failed} }
func (a WorkerAlert) Key() check.Key     { return check.Key{Queue: a.Queue, Kind: check.Workers} }

func (a DepthAlert) Severity() check.Severity      { return a.Level }
func (a FailedJobsAlert) Severity() check.Severity { return a.Level }
func (a WorkerAlert) Severity() check.Severity     { return a.Level }

func (DepthAlert) isAlert()      {}
func (FailedJobsAlert) isAlert() {}
func (WorkerAlert) isAlert()     {}

// AlertFor builds the alert variant matching c's kind. framework names the job
// system in global worker alerts.
func AlertFor(c check.Check, framework string) Alert {
	switch c.Key.Kind {
	case check.Failed:
		return FailedJobsAlert{Queue: c.Key.Queue, Count: c.Value, Level: c.Status}
	case check.Workers:
		return WorkerAlert{Queue: c.Key.Queue, Framework: framework, Level: c.Status}
	default:
		return DepthAlert{Queue: c.Key.Queue, Depth: c.Value, Threshold: c.Threshold, Level: c.Status}
	}
}

// Format renders the human-readable message for a.
func Format(a Alert) string {
	switch v := a.(type) {
	case DepthAlert:
		return fmt.Sprintf("🚨 Queue '%s' depth: %d (threshold: %d)", v.Queue, v.Depth, v.Threshold)
	case FailedJobsAlert:
		return fmt.Sprintf("⚠️ Queue '%s' has %d failed jobs", v.Queue, v.Count)
	case WorkerAlert:
		if v.Queue == "" {
			return fmt.Sprintf("🔴 No active %s workers detected!", v.Framework)
		}
		return fmt.Sprintf("🔴 Queue '%s' has no active workers!", v.Queue)
	default:
		return fmt.Sprintf("alert %s", a.Key())
	}
}
