package model

import "time"

// SampleBatch is the result of one full collector sweep: every process on
// the host was scored, but only the top-N "rogues" are carried forward.
// MaxScore covers all processes, not just the rogues list.
type SampleBatch struct {
	Timestamp    time.Time      `json:"timestamp"`
	ElapsedMs    int64          `json:"elapsed_ms"`
	ProcessCount int64          `json:"process_count"`
	MaxScore     int            `json:"max_score"`
	Rogues       []ProcessScore `json:"rogues"`
}
