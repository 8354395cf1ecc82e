package alerting

import (
	"time"

	"github.com/queuewatch/queuewatch/monitor/internal/check"
)

// State remembers when each key last produced a delivered alert.
// It is owned by a single Poller and is not safe for concurrent use.
type State struct {
	last map[check.Key]time.Time
}

// NewState returns an empty State.
func NewState() *State {
	return &State{last: make(map[check.Key]time.Time)}
}

// ShouldAlert reports whether key may alert at now: either it never alerted,
// or more than cooldown has elapsed since it last did.
func (s *State) ShouldAlert(key check.Key, cooldown time.Duration, now time.Time) bool {
	last, ok := s.last[key]
	if !ok {
		return true
	}
	return now.Sub(last) > cooldown
}

// Record stores now as the last alert time of key.
func (s *State) Record(key check.Key, now time.Time) {
	s.last[key] = now
}

// Last returns the last alert time of key.
func (s *State) Last(key check.Key) (time.Time, bool) {
	t, ok := s.last[key]
	return t, ok
}

func (s *State) Len() int { return len(s.last) }
