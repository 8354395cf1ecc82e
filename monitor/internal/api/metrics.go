package api

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/queuewatch/queuewatch/monitor/internal/check"
	"github.com/queuewatch/queuewatch/monitor/internal/store"
)

const metricPrefix = "queuewatch_"

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range Families(h.store) {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

// Families renders the latest cycle and the running totals as metric families.
func Families(st *store.Store) []*dto.MetricFamily {
	checks := st.Checks()
	value := gaugeFamily("metric_value", "Last value read for a queue metric.")
	threshold := gaugeFamily("metric_threshold", "Configured threshold for a queue metric.")
	status := gaugeFamily("metric_status", "Check status: 0 ok, 1 warning, 2 critical.")
	readErrors := gaugeFamily("read_errors", "1 when the last read of a queue metric failed.")

	for _, c := range checks {
		labels := keyLabels(c.Key)
		value.Metric = append(value.Metric, gauge(labels, float64(c.Value)))
		threshold.Metric = append(threshold.Metric, gauge(labels, float64(c.Threshold)))
		status.Metric = append(status.Metric, gauge(labels, float64(c.Status)))
		failed := 0.0
		if c.Skipped() {
			failed = 1
		}
		readErrors.Metric = append(readErrors.Metric, gauge(labels, failed))
	}

	stats := st.Stats()
	dispatched := &dto.MetricFamily{
		Name: ptr(metricPrefix + "alerts_dispatched_total"),
		Help: ptr("Alerts handed to the notification sink, by delivery outcome."),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			counter([]*dto.LabelPair{label("outcome", "delivered")}, float64(stats.Delivered)),
			counter([]*dto.LabelPair{label("outcome", "failed")}, float64(stats.Failed)),
		},
	}
	cycles := &dto.MetricFamily{
		Name:   ptr(metricPrefix + "cycles_total"),
		Help:   ptr("Completed poll cycles."),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{counter(nil, float64(stats.Cycles))},
	}

	out := []*dto.MetricFamily{dispatched, cycles}
	if len(checks) > 0 {
		out = append([]*dto.MetricFamily{value, threshold, status, readErrors}, out...)
	}
	return out
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(metricPrefix + name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func keyLabels(k check.Key) []*dto.LabelPair {
	return []*dto.LabelPair{label("kind", k.Kind.String()), label("queue", k.Queue)}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func gauge(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: ptr(v)}}
}

func counter(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: ptr(v)}}
}

func ptr[T any](v T) *T { return &v }
