package config

import (
	"strings"
	"time"
)

// Overrides carries command-line settings that take precedence over the file.
// A nil field leaves the file value alone.
type Overrides struct {
	Backend   *string
	Threshold *int64 // depth threshold
	Interval  *time.Duration
	Listen    *string

	// Queues replaces the queue list when non-empty.
	Queues []string
}

// Apply writes the overrides into c, then re-finalizes and validates it.
// Changing the backend also switches the broker URL variable when it was still
// the previous backend's default.
func (o Overrides) Apply(c *Config) error {
	m := &c.Monitor
	if o.Backend != nil {
		b := strings.ToLower(strings.TrimSpace(*o.Backend))
		if m.BrokerURLEnv == brokerDefaults[m.Backend].env {
			m.BrokerURLEnv = ""
		}
		m.Backend = b
	}
	if o.Threshold != nil {
		m.Thresholds.Depth = *o.Threshold
	}
	if o.Interval != nil {
		m.CheckInterval = *o.Interval
	}
	if o.Listen != nil {
		m.HTTP.Listen = *o.Listen
	}
	if len(o.Queues) > 0 {
		m.Queues = append([]string(nil), o.Queues...)
	}
	c.Finalize()
	return c.Validate()
}
