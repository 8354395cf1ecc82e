package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/queuewatch/queuewatch/monitor/internal/config"
)

const (
	defaultFetchTimeout = 10 * time.Second

	// familiesMaxAge lets the reads of one cycle share a single scrape.
	familiesMaxAge = time.Second
)

// Prometheus reads queue numbers from a queue exporter's text exposition
// (rq-exporter, celery-exporter, or any job system instrumented with
// Prometheus). Each read sums the samples of one metric family whose labels
// match the selector and the queue.
type Prometheus struct {
	cfg    config.PrometheusConfig
	client *http.Client
	now    func() time.Time // injectable for deterministic tests

	mu        sync.Mutex
	families  map[string]*dto.MetricFamily
	fetchedAt time.Time
}

// NewPrometheus builds the backend. timeout bounds each exposition fetch and
// defaults to 10 seconds.
func NewPrometheus(cfg config.PrometheusConfig, timeout time.Duration) *Prometheus {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Prometheus{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (b *Prometheus) Name() string { return "prometheus" }

func (b *Prometheus) Capabilities() Capabilities {
	return Capabilities{Framework: "queue", FailedJobs: true, WorkersPerQueue: true}
}

func (b *Prometheus) QueueLength(ctx context.Context, queue string) (int64, error) {
	return b.read(ctx, OpQueueLength, b.cfg.Depth, queue)
}

func (b *Prometheus) FailedCount(ctx context.Context, queue string) (int64, error) {
	return b.read(ctx, OpFailedCount, b.cfg.Failed, queue)
}

func (b *Prometheus) LiveWorkerCount(ctx context.Context, scope string) (int64, error) {
	return b.read(ctx, OpLiveWorkers, b.cfg.Workers, scope)
}

func (b *Prometheus) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *Prometheus) read(ctx context.Context, op string, sel config.MetricSelector, queue string) (int64, error) {
	mfs, err := b.metrics(ctx)
	if err != nil {
		return 0, &ReadError{Backend: b.Name(), Op: op, Target: queue, Err: err}
	}
	mf, ok := mfs[sel.Name]
	if !ok {
		return 0, &ReadError{Backend: b.Name(), Op: op, Target: queue,
			Err: fmt.Errorf("metric %q not exposed", sel.Name)}
	}
	label := sel.QueueLabel
	if label == "" {
		label = b.cfg.QueueLabel
	}
	return int64(sumMatching(mf, sel.Labels, label, queue)), nil
}

// metrics returns the parsed exposition, reusing the last scrape when it is
// younger than familiesMaxAge.
func (b *Prometheus) metrics(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.families != nil && now.Sub(b.fetchedAt) < familiesMaxAge {
		return b.families, nil
	}
	mfs, err := fetchMetrics(ctx, b.client, b.cfg.Endpoint)
	if err != nil {
		b.families = nil
		return nil, err
	}
	b.families = mfs
	b.fetchedAt = now
	return mfs, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumMatching adds up the counter, gauge or untyped values of every metric in
// mf whose labels contain want and whose queueLabel names queue. A queue label
// may hold a comma-separated list (workers serving several queues). An empty
// queue matches every metric.
func sumMatching(mf *dto.MetricFamily, want map[string]string, queueLabel, queue string) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if !labelsMatch(labels, want) {
			continue
		}
		if queue != "" && !listContains(labels[queueLabel], queue) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func listContains(list, v string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == v {
			return true
		}
	}
	return false
}
