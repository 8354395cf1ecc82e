// Package config loads and watches the monitor configuration.
//
// Top-level types:
//   - Config{Monitor}: full tree parsed from YAML
//   - MonitorConfig: backend (rq|celery|prometheus), broker_url / broker_url_env,
//     check_interval, read_timeout, queues, per-kind thresholds, severities,
//     cooldowns and on/off switches, celery/prometheus specifics, webhook, http
//   - WebhookConfig: url or url_env; Resolve() reads the environment
//
// Default() is usable without any file: rq backend, REDIS_URL or
// redis://localhost:6379, 60s interval, depth threshold 500, queues
// default/high/low, cooldowns 15m/30m/5m, webhook from QUEUE_MONITOR_WEBHOOK.
//
// Load/Parse apply defaults, decode YAML over them, Finalize, then Validate.
// Validation errors wrap ErrInvalid and are fatal at startup.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory so that
// editors which save via rename are picked up; invalid reloads are logged and
// ignored.
package config
