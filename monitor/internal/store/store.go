package store

import (
	"sync"
	"time"

	"github.com/queuewatch/queuewatch/monitor/internal/alerting"
	"github.com/queuewatch/queuewatch/monitor/internal/check"
)

// DefaultHistory is the number of dispatched alerts kept.
const DefaultHistory = 200

// AlertRecord is one dispatch attempt as kept in the history.
type AlertRecord struct {
	Key          check.Key
	Severity     check.Severity
	Message      string
	DispatchedAt time.Time
	Err          error
}

// Delivered reports whether the sink accepted the alert.
func (r AlertRecord) Delivered() bool { return r.Err == nil }

// Stats are running totals since start.
type Stats struct {
	Cycles     uint64
	Delivered  uint64
	Failed     uint64
	Suppressed uint64
	ReadErrors uint64
}

// Store is a thread-safe holder of the latest cycle. Publish is called by the
// poller; every reader gets copies.
type Store struct {
	backend    string
	staleAfter time.Duration
	maxHistory int

	mu        sync.RWMutex
	latest    *alerting.Cycle
	updatedAt time.Time
	history   []AlertRecord // oldest first
	stats     Stats
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store for the named backend. The latest cycle is reported
// stale once it is older than staleAfter; zero disables staleness.
func New(backend string, staleAfter time.Duration) *Store {
	return &Store{
		backend:    backend,
		staleAfter: staleAfter,
		maxHistory: DefaultHistory,
		now:        time.Now,
	}
}

// Backend returns the backend name the store reports for.
func (s *Store) Backend() string { return s.backend }

// Publish replaces the latest cycle and appends its alerts to the history.
func (s *Store) Publish(c alerting.Cycle) {
	cp := c
	cp.Checks = append([]check.Check(nil), c.Checks...)
	cp.Alerts = append([]alerting.Dispatched(nil), c.Alerts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = &cp
	s.updatedAt = s.now()
	s.stats.Cycles++
	s.stats.Suppressed += uint64(c.Suppressed)
	for _, ch := range c.Checks {
		if ch.Skipped() {
			s.stats.ReadErrors++
		}
	}
	for _, d := range c.Alerts {
		if d.Err != nil {
			s.stats.Failed++
		} else {
			s.stats.Delivered++
		}
		s.history = append(s.history, AlertRecord{
			Key:          d.Alert.Key(),
			Severity:     d.Alert.Severity(),
			Message:      d.Message,
			DispatchedAt: d.At,
			Err:          d.Err,
		})
	}
	if len(s.history) > s.maxHistory {
		s.history = append([]AlertRecord(nil), s.history[len(s.history)-s.maxHistory:]...)
	}
}

// Latest returns the most recent cycle and the time it was published.
func (s *Store) Latest() (alerting.Cycle, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return alerting.Cycle{}, time.Time{}, false
	}
	cp := *s.latest
	cp.Checks = append([]check.Check(nil), s.latest.Checks...)
	cp.Alerts = append([]alerting.Dispatched(nil), s.latest.Alerts...)
	return cp, s.updatedAt, true
}

// Checks returns the checks of the latest cycle.
func (s *Store) Checks() []check.Check {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return []check.Check{}
	}
	return append([]check.Check(nil), s.latest.Checks...)
}

// Alerts returns the alert history, newest first.
func (s *Store) Alerts() []AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AlertRecord, len(s.history))
	for i, r := range s.history {
		out[len(s.history)-1-i] = r
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Stale reports whether no cycle was published yet or the latest one is older
// than staleAfter.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return true
	}
	if s.staleAfter <= 0 {
		return false
	}
	return s.now().Sub(s.updatedAt) > s.staleAfter
}
