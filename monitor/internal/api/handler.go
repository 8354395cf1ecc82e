package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/queuewatch/queuewatch/monitor/internal/check"
	"github.com/queuewatch/queuewatch/monitor/internal/store"
)

// Handler serves the status API from the status store.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to st and registers all routes.
func New(st *store.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/healthz", h.health)
	h.mux.HandleFunc("/api/v1/checks", h.checks)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /healthz. It answers 503 until the first cycle completes
// and whenever the latest cycle is stale.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Status:  status(h.store),
		Backend: h.store.Backend(),
		Cycles:  h.store.Stats().Cycles,
	}
	if _, at, ok := h.store.Latest(); ok {
		resp.LastCycle = at.UTC().Format(time.RFC3339)
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// checks returns GET /api/v1/checks, the checks of the latest cycle.
func (h *Handler) checks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toChecks(h.store.Checks()))
}

// alerts returns GET /api/v1/alerts, newest first. ?limit=N caps the list.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records := h.store.Alerts()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(records) {
			records = records[:n]
		}
	}
	jsonResp(w, http.StatusOK, toAlerts(records))
}

// snapshot returns GET /api/v1/snapshot, the full state in one payload.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the snapshot payload from st. It is shared with the
// live stream.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	resp := SnapshotResponse{
		Backend:     st.Backend(),
		Status:      status(st),
		Checks:      toChecks(st.Checks()),
		Alerts:      toAlerts(st.Alerts()),
		Stats:       toStats(st.Stats()),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if _, at, ok := st.Latest(); ok {
		resp.LastCycle = at.UTC().Format(time.RFC3339)
	}
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func status(st *store.Store) string {
	if st.Stale() {
		return "stale"
	}
	return "ok"
}

func toChecks(checks []check.Check) []CheckResponse {
	out := make([]CheckResponse, 0, len(checks))
	for _, c := range checks {
		cr := CheckResponse{
			Key:        c.Key.String(),
			Queue:      c.Key.Queue,
			Kind:       c.Key.Kind.String(),
			Value:      c.Value,
			Threshold:  c.Threshold,
			Comparator: c.Comparator.String(),
			Status:     c.Status.String(),
			CheckedAt:  c.CheckedAt.UTC().Format(time.RFC3339),
		}
		if c.Err != nil {
			cr.Error = c.Err.Error()
		}
		out = append(out, cr)
	}
	return out
}

func toAlerts(records []store.AlertRecord) []AlertResponse {
	out := make([]AlertResponse, 0, len(records))
	for _, a := range records {
		ar := AlertResponse{
			Key:          a.Key.String(),
			Queue:        a.Key.Queue,
			Kind:         a.Key.Kind.String(),
			Severity:     a.Severity.String(),
			Message:      a.Message,
			DispatchedAt: a.DispatchedAt.UTC().Format(time.RFC3339),
			Delivered:    a.Delivered(),
		}
		if a.Err != nil {
			ar.Error = a.Err.Error()
		}
		out = append(out, ar)
	}
	return out
}

func toStats(s store.Stats) StatsResponse {
	return StatsResponse{
		Cycles:     s.Cycles,
		Delivered:  s.Delivered,
		Failed:     s.Failed,
		Suppressed: s.Suppressed,
		ReadErrors: s.ReadErrors,
	}
}
