package types

import "time"

// Progress sink field names.
const (
	FieldStatus      = "status"
	FieldTotalUnits  = "total_units"
	FieldProgressPct = "progress_pct"
	FieldUnitsDone   = "units_done"
	FieldUnitsFailed = "units_failed"
	FieldThroughput  = "throughput"
	FieldETASeconds  = "eta_seconds"
)

// WorkerStats aggregates the units a single worker processed within a session.
type WorkerStats struct {
	Units       int     `json:"units"`
	TotalMS     float64 `json:"total_ms"`
	AvgMS       float64 `json:"avg_ms"`
	AvgMemoryMB float64 `json:"avg_memory_mb"`
}

// LatencyStats summarizes successful unit processing durations in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// ProgressSnapshot is a point-in-time view of a session's progress.
//
// Completed counts every resolved unit, including failures.
type ProgressSnapshot struct {
	SessionID  string        `json:"session_id"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Retries    int           `json:"retries"`
	Elapsed    time.Duration `json:"elapsed"`
	Throughput float64       `json:"throughput"`
	ETA        time.Duration `json:"eta"`
	Percent    float64       `json:"percent"`
	Latency    LatencyStats  `json:"latency"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Remaining returns the number of units not yet resolved.
func (p ProgressSnapshot) Remaining() int {
	if p.Completed >= p.Total {
		return 0
	}

	return p.Total - p.Completed
}

// Done reports whether every unit has resolved.
func (p ProgressSnapshot) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}

// Summary is the final per-session statistics report.
type Summary struct {
	Progress    ProgressSnapshot       `json:"progress"`
	Workers     map[string]WorkerStats `json:"workers"`
	Operations  map[string]int         `json:"operations"`
	WorkerCount int                    `json:"worker_count"`
}

// SessionInfo is an immutable snapshot of a session's identity and state.
type SessionInfo struct {
	ID        string
	Total     int
	State     SessionState
	Directive Directive
	CreatedAt time.Time
	EndedAt   time.Time
}
