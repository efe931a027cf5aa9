package model

import "time"

// CaptureStatus is the outcome recorded for one sub-step of a forensics
// capture pipeline run. A failed step never aborts the other steps.
type CaptureStatus string

const (
	StatusOK     CaptureStatus = "ok"
	StatusFailed CaptureStatus = "failed"
)

// ForensicCapture is the top-level persisted row for one triggered capture.
type ForensicCapture struct {
	ID              string        `json:"id"`
	EventID         string        `json:"event_id"`
	CapturedAt      time.Time     `json:"captured_at"`
	Trigger         string        `json:"trigger"`
	TailspinStatus  CaptureStatus `json:"tailspin_status"`
	LogsStatus      CaptureStatus `json:"logs_status"`
	BufferContextID string        `json:"buffer_context_id,omitempty"`
}

// SpindumpProcess is one `Process:` block decoded from the kernel-trace
// dump.
type SpindumpProcess struct {
	ID          string  `json:"id"`
	CaptureID   string  `json:"capture_id"`
	PID         int     `json:"pid"`
	Name        string  `json:"name"`
	Path        string  `json:"path,omitempty"`
	ParentPID   int     `json:"parent_pid,omitempty"`
	ParentName  string  `json:"parent_name,omitempty"`
	FootprintMB float64 `json:"footprint_mb,omitempty"`
	CPUTimeSec  float64 `json:"cpu_time_sec,omitempty"`
	ThreadCount int     `json:"thread_count,omitempty"`
}

// SpindumpThread is one thread line nested under a SpindumpProcess.
type SpindumpThread struct {
	ID          string  `json:"id"`
	ProcessID   string  `json:"process_id"`
	ThreadID    string  `json:"thread_id"`
	ThreadName  string  `json:"thread_name,omitempty"`
	SampleCount int     `json:"sample_count,omitempty"`
	Priority    int     `json:"priority,omitempty"`
	CPUTimeSec  float64 `json:"cpu_time_sec,omitempty"`
	State       string  `json:"state,omitempty"`
	BlockedOn   string  `json:"blocked_on,omitempty"`
}

// LogEntry is one decoded row from the unprivileged system-log dump.
type LogEntry struct {
	ID            string    `json:"id"`
	CaptureID     string    `json:"capture_id"`
	Timestamp     time.Time `json:"timestamp"`
	MachTimestamp int64     `json:"mach_timestamp,omitempty"`
	Subsystem     string    `json:"subsystem,omitempty"`
	Category      string    `json:"category,omitempty"`
	ProcessName   string    `json:"process_name,omitempty"`
	ProcessID     int       `json:"process_id,omitempty"`
	MessageType   string    `json:"message_type,omitempty"`
	EventMessage  string    `json:"event_message,omitempty"`
}

// BufferContext summarizes the ring buffer window at capture time: the
// processes that appeared most frequently in the top-N across the window.
type BufferContext struct {
	ID           string `json:"id"`
	CaptureID    string `json:"capture_id"`
	SampleCount  int    `json:"sample_count"`
	PeakScore    int    `json:"peak_score"`
	CulpritsJSON string `json:"culprits_json"`
}
