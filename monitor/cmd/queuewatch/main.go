package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/queuewatch/queuewatch/monitor/internal/alerting"
	"github.com/queuewatch/queuewatch/monitor/internal/api"
	"github.com/queuewatch/queuewatch/monitor/internal/backend"
	"github.com/queuewatch/queuewatch/monitor/internal/config"
	"github.com/queuewatch/queuewatch/monitor/internal/notify"
	"github.com/queuewatch/queuewatch/monitor/internal/store"
	"github.com/queuewatch/queuewatch/monitor/internal/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	backendName := flag.String("backend", config.DefaultBackend, "queue backend: rq | celery | prometheus")
	threshold := flag.Int64("threshold", config.DefaultDepthThreshold, "queue depth alert threshold")
	interval := flag.Duration("interval", config.DefaultCheckInterval, "time between checks")
	listen := flag.String("listen", "", "status API listen address, e.g. :9100 (empty disables)")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: queuewatch [flags] [queue ...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		return 1
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Only flags given explicitly override the file.
	var ov config.Overrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			ov.Backend = backendName
		case "threshold":
			ov.Threshold = threshold
		case "interval":
			ov.Interval = interval
		case "listen":
			ov.Listen = listen
		}
	})
	ov.Queues = flag.Args()

	slog.Info("queuewatch starting", "config", *configPath)

	cfg, err := loadConfig(*configPath, ov)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}
	m := cfg.Monitor
	slog.Info("config loaded",
		"backend", m.Backend,
		"queues", m.Queues,
		"check_interval", m.CheckInterval.String(),
		"webhook", m.Webhook.Resolve() != "",
		"listen", m.HTTP.Listen,
	)

	b, err := backend.New(m)
	if err != nil {
		slog.Error("failed to create backend", "backend", m.Backend, "err", err)
		return 1
	}
	defer b.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(b.Name(), 3*m.CheckInterval)

	var hub *ws.Hub
	var httpSrv *http.Server
	if m.HTTP.Listen != "" {
		hub = ws.New(st, m.CheckInterval)
		go hub.Run(ctx)

		mux := http.NewServeMux()
		mux.Handle("/ws/stream", hub)
		mux.Handle("/", api.New(st))
		httpSrv = &http.Server{
			Addr:              m.HTTP.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", m.HTTP.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	poller := alerting.New(alerting.Options{
		Metrics:   alerting.Plan(m, b),
		Sink:      notify.New(m.Webhook.Resolve(), os.Stdout),
		Interval:  m.CheckInterval,
		Framework: b.Capabilities().Framework,
		Observer: func(c alerting.Cycle) {
			st.Publish(c)
			if hub != nil {
				hub.Notify()
			}
		},
	})

	if *configPath != "" {
		r := &reloader{running: cfg, last: cfg, ov: ov, backend: b, poller: poller}
		go func() {
			err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				pending, err := r.apply(updated)
				if err != nil {
					slog.Error("config reload rejected", "err", err)
					return
				}
				if len(pending) > 0 {
					slog.Warn("config changes need a restart to take effect", "settings", pending)
				}
				slog.Info("config hot-reloaded", "queues", updated.Monitor.Queues)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	if err := poller.Run(ctx); err != nil {
		slog.Error("poller stopped", "err", err)
		return 1
	}

	slog.Info("queuewatch shutting down")
	if httpSrv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		httpSrv.Shutdown(sctx) //nolint:errcheck
	}
	return 0
}

// loadConfig reads path when set, or starts from defaults, then applies the
// command-line overrides.
func loadConfig(path string, ov config.Overrides) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := ov.Apply(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// reloader applies config file changes to a running poller. Settings that
// only take effect at startup keep their running values until restart.
type reloader struct {
	running *config.Config
	last    *config.Config
	ov      config.Overrides
	backend backend.Backend
	poller  *alerting.Poller
}

// apply re-plans the poller from updated and returns the restart-only
// settings this file version newly moves away from the running values.
// A rejected file leaves the poller and the last accepted version untouched.
func (r *reloader) apply(updated *config.Config) ([]string, error) {
	if err := r.ov.Apply(updated); err != nil {
		return nil, err
	}

	pending := map[string]bool{}
	for _, name := range config.RestartRequired(r.running, updated) {
		pending[name] = true
	}
	var fresh []string
	for _, name := range config.RestartRequired(r.last, updated) {
		if pending[name] {
			fresh = append(fresh, name)
		}
	}
	r.last = updated

	r.poller.Reload(alerting.Plan(updated.Monitor, r.backend))
	return fresh, nil
}
