package check

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordered classification of a metric reading.
// Ok < Warning < Critical; anything above Ok is alert-worthy.
type Severity int

const (
	Ok Severity = iota
	Warning
	Critical
)

// String returns the lower-case status name used in logs, config and JSON.
func (s Severity) String() string {
	switch s {
	case Ok:
		return "ok"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// AlertWorthy reports whether s is above Ok.
func (s Severity) AlertWorthy() bool { return s > Ok }

// ParseSeverity maps "ok", "warning" or "critical" (case-insensitive) to a Severity.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "ok":
		return Ok, nil
	case "warning":
		return Warning, nil
	case "critical":
		return Critical, nil
	default:
		return Ok, fmt.Errorf("unknown severity %q", v)
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Kind identifies which quantity of a queue is being checked.
type Kind int

const (
	Depth Kind = iota
	Failed
	Workers
)

// Kinds lists every metric kind in evaluation order.
var Kinds = []Kind{Depth, Failed, Workers}

func (k Kind) String() string {
	switch k {
	case Depth:
		return "depth"
	case Failed:
		return "failed"
	case Workers:
		return "workers"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(v string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == v {
			return k, nil
		}
	}
	return Depth, fmt.Errorf("unknown metric kind %q", v)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Key is the stable identity of a monitored quantity.
// An empty Queue means the metric is global (e.g. all Celery workers).
type Key struct {
	Queue string
	Kind  Kind
}

// String renders "queue:kind", or just "kind" for global keys.
func (k Key) String() string {
	if k.Queue == "" {
		return k.Kind.String()
	}
	return k.Queue + ":" + k.Kind.String()
}

// Global reports whether the key is not bound to a single queue.
func (k Key) Global() bool { return k.Queue == "" }

// Comparator decides whether a value breaches its threshold.
type Comparator int

const (
	// AtOrAbove breaches when value >= threshold.
	AtOrAbove Comparator = iota
	// Below breaches when value < threshold.
	Below
)

func (c Comparator) String() string {
	switch c {
	case AtOrAbove:
		return ">="
	case Below:
		return "<"
	default:
		return "?"
	}
}

// Breached applies the comparator to value and threshold.
func (c Comparator) Breached(value, threshold int64) bool {
	switch c {
	case AtOrAbove:
		return value >= threshold
	case Below:
		return value < threshold
	default:
		return false
	}
}

// Check is an immutable snapshot of one metric evaluated in one cycle.
type Check struct {
	Key        Key
	Value      int64
	Threshold  int64
	Comparator Comparator
	Status     Severity
	CheckedAt  time.Time

	// Err is set when the backend read failed. Status is then Ok and the
	// check is skipped for this cycle.
	Err error
}

// Skipped reports whether the reading failed and was treated as ok.
func (c Check) Skipped() bool { return c.Err != nil }

// CheckMetric classifies value against threshold. A breach yields sev, anything
// else Ok. A non-positive sev is treated as Warning so that a breach is never
// silently reported as ok.
func CheckMetric(key Key, value, threshold int64, cmp Comparator, sev Severity) Check {
	c := Check{
		Key:        key,
		Value:      value,
		Threshold:  threshold,
		Comparator: cmp,
		Status:     Ok,
	}
	if cmp.Breached(value, threshold) {
		if !sev.AlertWorthy() {
			sev = Warning
		}
		c.Status = sev
	}
	return c
}

// Unread returns an Ok check for key carrying the read error.
func Unread(key Key, threshold int64, cmp Comparator, err error) Check {
	return Check{
		Key:        key,
		Threshold:  threshold,
		Comparator: cmp,
		Status:     Ok,
		Err:        err,
	}
}
