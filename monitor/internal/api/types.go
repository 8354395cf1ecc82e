package api

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"` // "ok" | "stale"
	Backend   string `json:"backend"`
	Cycles    uint64 `json:"cycles"`
	LastCycle string `json:"last_cycle,omitempty"` // RFC3339
}

// CheckResponse is one metric check of the latest cycle.
type CheckResponse struct {
	Key        string `json:"key"`
	Queue      string `json:"queue,omitempty"`
	Kind       string `json:"kind"`
	Value      int64  `json:"value"`
	Threshold  int64  `json:"threshold"`
	Comparator string `json:"comparator"`
	Status     string `json:"status"`
	CheckedAt  string `json:"checked_at"` // RFC3339
	Error      string `json:"error,omitempty"`
}

// AlertResponse is one entry of the dispatched-alert history.
type AlertResponse struct {
	Key          string `json:"key"`
	Queue        string `json:"queue,omitempty"`
	Kind         string `json:"kind"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	DispatchedAt string `json:"dispatched_at"` // RFC3339
	Delivered    bool   `json:"delivered"`
	Error        string `json:"error,omitempty"`
}

// StatsResponse holds the running totals since start.
type StatsResponse struct {
	Cycles     uint64 `json:"cycles"`
	Delivered  uint64 `json:"alerts_delivered"`
	Failed     uint64 `json:"alerts_failed"`
	Suppressed uint64 `json:"alerts_suppressed"`
	ReadErrors uint64 `json:"read_errors"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every live-stream message.
type SnapshotResponse struct {
	Backend     string          `json:"backend"`
	Status      string          `json:"status"`
	LastCycle   string          `json:"last_cycle,omitempty"`
	Checks      []CheckResponse `json:"checks"`
	Alerts      []AlertResponse `json:"alerts"`
	Stats       StatsResponse   `json:"stats"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
