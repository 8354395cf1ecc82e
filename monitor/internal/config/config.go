package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queuewatch/queuewatch/monitor/internal/check"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBackend        = "rq"
	DefaultCheckInterval  = 60 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultDepthThreshold = 500
	DefaultWebhookEnv     = "QUEUE_MONITOR_WEBHOOK"
	DefaultWorkerPattern  = "celery:*:pidbox:*"
	DefaultQueueLabel     = "queue"

	defaultJobsMetric = "rq_jobs"

	DefaultDepthCooldown   = 15 * time.Minute
	DefaultFailedCooldown  = 30 * time.Minute
	DefaultWorkersCooldown = 5 * time.Minute
)

// DefaultQueues is the queue list used when neither the file nor the command
// line names any.
var DefaultQueues = []string{"default", "high", "low"}

// ErrInvalid marks a configuration that must not be started with.
var ErrInvalid = errors.New("invalid configuration")

// brokerDefaults holds per-backend connection defaults.
var brokerDefaults = map[string]struct{ env, url string }{
	"rq":     {env: "REDIS_URL", url: "redis://localhost:6379"},
	"celery": {env: "CELERY_BROKER_URL", url: "redis://localhost:6379/0"},
}

// Config is the top-level configuration file layout.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
}

// MonitorConfig holds everything the poller and its collaborators need.
type MonitorConfig struct {
	// Backend is one of: rq | celery | prometheus.
	Backend string `yaml:"backend"`

	// BrokerURL is the Redis connection string. When empty it is read from
	// the environment variable named by BrokerURLEnv.
	BrokerURL    string `yaml:"broker_url"`
	BrokerURLEnv string `yaml:"broker_url_env"`

	// CheckInterval is the time between two poll cycles.
	CheckInterval time.Duration `yaml:"check_interval"`

	// ReadTimeout bounds each backend read.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	Queues []string `yaml:"queues"`

	Thresholds Thresholds `yaml:"thresholds"`
	Severities Severities `yaml:"severities"`
	Cooldowns  Cooldowns  `yaml:"cooldowns"`
	Checks     Checks     `yaml:"checks"`

	Celery     CeleryConfig     `yaml:"celery"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// Thresholds per metric kind. Depth and Failed alert at or above the value;
// Workers alerts below it.
type Thresholds struct {
	Depth   int64 `yaml:"depth"`
	Failed  int64 `yaml:"failed"`
	Workers int64 `yaml:"workers"`
}

// Severities assigned to a breach of each metric kind.
type Severities struct {
	Depth   check.Severity `yaml:"depth"`
	Failed  check.Severity `yaml:"failed"`
	Workers check.Severity `yaml:"workers"`
}

// Cooldowns is the minimum time between two alerts for the same key.
type Cooldowns struct {
	Depth   time.Duration `yaml:"depth"`
	Failed  time.Duration `yaml:"failed"`
	Workers time.Duration `yaml:"workers"`
}

// Checks toggles each metric kind.
type Checks struct {
	Depth   bool `yaml:"depth"`
	Failed  bool `yaml:"failed"`
	Workers bool `yaml:"workers"`
}

// CeleryConfig holds Celery-specific inspection settings.
type CeleryConfig struct {
	// WorkerPattern is the SCAN match pattern whose key count is the number
	// of live workers.
	WorkerPattern string `yaml:"worker_pattern"`
}

// MetricSelector picks samples of one metric family, optionally narrowed by
// fixed label values.
type MetricSelector struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels"`

	// QueueLabel overrides PrometheusConfig.QueueLabel for this family.
	QueueLabel string `yaml:"queue_label"`
}

// PrometheusConfig configures the exporter-backed backend.
type PrometheusConfig struct {
	// Endpoint is the full URL of the exporter's text exposition.
	Endpoint string `yaml:"endpoint"`

	// QueueLabel is the label carrying the queue name.
	QueueLabel string `yaml:"queue_label"`

	Depth   MetricSelector `yaml:"depth"`
	Failed  MetricSelector `yaml:"failed"`
	Workers MetricSelector `yaml:"workers"`
}

// WebhookConfig defines the optional webhook target.
type WebhookConfig struct {
	URL string `yaml:"url"`

	// URLEnv is the name of the environment variable holding the webhook URL,
	// consulted when URL is empty.
	URLEnv string `yaml:"url_env"`
}

// Resolve returns the webhook URL, or "" for console-only delivery.
func (w WebhookConfig) Resolve() string {
	if w.URL != "" {
		return w.URL
	}
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// HTTPConfig controls the status API. An empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// ResolveBrokerURL returns the broker connection string from, in order, the
// literal field, the environment, and the backend's default.
func (m MonitorConfig) ResolveBrokerURL() string {
	if m.BrokerURL != "" {
		return m.BrokerURL
	}
	if m.BrokerURLEnv != "" {
		if v := os.Getenv(m.BrokerURLEnv); v != "" {
			return v
		}
	}
	return brokerDefaults[m.Backend].url
}

// Threshold returns the configured threshold for kind.
func (m MonitorConfig) Threshold(k check.Kind) int64 {
	switch k {
	case check.Failed:
		return m.Thresholds.Failed
	case check.Workers:
		return m.Thresholds.Workers
	default:
		return m.Thresholds.Depth
	}
}

// Severity returns the breach severity for kind.
func (m MonitorConfig) Severity(k check.Kind) check.Severity {
	switch k {
	case check.Failed:
		return m.Severities.Failed
	case check.Workers:
		return m.Severities.Workers
	default:
		return m.Severities.Depth
	}
}

// Cooldown returns the repeat-alert window for kind.
func (m MonitorConfig) Cooldown(k check.Kind) time.Duration {
	switch k {
	case check.Failed:
		return m.Cooldowns.Failed
	case check.Workers:
		return m.Cooldowns.Workers
	default:
		return m.Cooldowns.Depth
	}
}

// Enabled reports whether kind is checked at all.
func (m MonitorConfig) Enabled(k check.Kind) bool {
	switch k {
	case check.Failed:
		return m.Checks.Failed
	case check.Workers:
		return m.Checks.Workers
	default:
		return m.Checks.Depth
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w: %w", ErrInvalid, err)
	}
	cfg.Finalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Backend:       DefaultBackend,
			CheckInterval: DefaultCheckInterval,
			ReadTimeout:   DefaultReadTimeout,
			Queues:        append([]string(nil), DefaultQueues...),
			Thresholds: Thresholds{
				Depth:   DefaultDepthThreshold,
				Failed:  1,
				Workers: 1,
			},
			Severities: Severities{
				Depth:   check.Warning,
				Failed:  check.Warning,
				Workers: check.Critical,
			},
			Cooldowns: Cooldowns{
				Depth:   DefaultDepthCooldown,
				Failed:  DefaultFailedCooldown,
				Workers: DefaultWorkersCooldown,
			},
			Checks: Checks{Depth: true, Failed: true, Workers: true},
			Celery: CeleryConfig{WorkerPattern: DefaultWorkerPattern},
			Prometheus: PrometheusConfig{
				QueueLabel: DefaultQueueLabel,
				Depth:      MetricSelector{Name: defaultJobsMetric},
				Failed:     MetricSelector{Name: defaultJobsMetric},
				Workers:    MetricSelector{Name: "rq_workers", QueueLabel: "queues"},
			},
			Webhook: WebhookConfig{URLEnv: DefaultWebhookEnv},
		},
	}
}

// Finalize fills fields whose default depends on other fields. It is safe to
// call more than once.
func (c *Config) Finalize() {
	m := &c.Monitor
	m.Backend = strings.ToLower(strings.TrimSpace(m.Backend))
	if m.BrokerURLEnv == "" {
		m.BrokerURLEnv = brokerDefaults[m.Backend].env
	}
	// The status filters belong to rq-exporter's rq_jobs. They are filled in
	// only when the file names no labels, so an explicit map (even an empty
	// one) replaces them.
	if m.Prometheus.Depth.Labels == nil && m.Prometheus.Depth.Name == defaultJobsMetric {
		m.Prometheus.Depth.Labels = map[string]string{"status": "queued"}
	}
	if m.Prometheus.Failed.Labels == nil && m.Prometheus.Failed.Name == defaultJobsMetric {
		m.Prometheus.Failed.Labels = map[string]string{"status": "failed"}
	}
	queues := m.Queues[:0]
	for _, q := range m.Queues {
		if q = strings.TrimSpace(q); q != "" {
			queues = append(queues, q)
		}
	}
	m.Queues = queues
}

// Validate checks required fields and structural constraints. Every returned
// error wraps ErrInvalid.
func (c *Config) Validate() error {
	m := c.Monitor
	switch m.Backend {
	case "rq", "celery":
		if m.ResolveBrokerURL() == "" {
			return invalid("monitor.broker_url is required for backend %q", m.Backend)
		}
	case "prometheus":
		if m.Prometheus.Endpoint == "" {
			return invalid("monitor.prometheus.endpoint is required")
		}
		if m.Prometheus.QueueLabel == "" {
			return invalid("monitor.prometheus.queue_label must not be empty")
		}
		for name, sel := range map[string]MetricSelector{
			"depth":   m.Prometheus.Depth,
			"failed":  m.Prometheus.Failed,
			"workers": m.Prometheus.Workers,
		} {
			if sel.Name == "" {
				return invalid("monitor.prometheus.%s.name must not be empty", name)
			}
		}
	default:
		return invalid("monitor.backend: unknown backend %q", m.Backend)
	}
	if m.CheckInterval <= 0 {
		return invalid("monitor.check_interval must be positive")
	}
	if m.ReadTimeout <= 0 {
		return invalid("monitor.read_timeout must be positive")
	}
	if len(m.Queues) == 0 {
		return invalid("monitor.queues must not be empty")
	}
	seen := make(map[string]bool, len(m.Queues))
	for _, q := range m.Queues {
		if seen[q] {
			return invalid("monitor.queues: duplicate queue %q", q)
		}
		seen[q] = true
	}
	for _, k := range check.Kinds {
		if m.Threshold(k) < 0 {
			return invalid("monitor.thresholds.%s must not be negative", k)
		}
		if m.Cooldown(k) < 0 {
			return invalid("monitor.cooldowns.%s must not be negative", k)
		}
		if !m.Severity(k).AlertWorthy() {
			return invalid("monitor.severities.%s must be warning or critical", k)
		}
	}
	return nil
}

// RestartRequired lists the settings that differ between old and updated and
// cannot be applied without restarting the process.
func RestartRequired(old, updated *Config) []string {
	var out []string
	o, n := old.Monitor, updated.Monitor
	if o.Backend != n.Backend {
		out = append(out, "backend")
	}
	if o.ResolveBrokerURL() != n.ResolveBrokerURL() {
		out = append(out, "broker_url")
	}
	if o.CheckInterval != n.CheckInterval {
		out = append(out, "check_interval")
	}
	if o.HTTP.Listen != n.HTTP.Listen {
		out = append(out, "http.listen")
	}
	if o.Prometheus.Endpoint != n.Prometheus.Endpoint {
		out = append(out, "prometheus.endpoint")
	}
	if o.Webhook.Resolve() != n.Webhook.Resolve() {
		out = append(out, "webhook")
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
