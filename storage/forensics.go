package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hluisi/roguehunter/model"
)

// InsertForensicCapture writes a forensic_captures row and all child rows
// in a single transaction. A fully-failed capture still gets its status
// row; every child slice may be empty.
func (s *Store) InsertForensicCapture(capture model.ForensicCapture, processes []model.SpindumpProcess, threads []model.SpindumpThread, logs []model.LogEntry, buf *model.BufferContext) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin forensics tx: %w", err)
	}
	defer tx.Rollback()

	if capture.ID == "" {
		capture.ID = uuid.NewString()
	}
	_, err = tx.Exec(`INSERT INTO forensic_captures (id, event_id, captured_at, trigger, tailspin_status, logs_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		capture.ID, capture.EventID, capture.CapturedAt.Unix(), capture.Trigger, string(capture.TailspinStatus), string(capture.LogsStatus))
	if err != nil {
		return fmt.Errorf("storage: insert forensic_captures: %w", err)
	}

	procIDs := make(map[int]string, len(processes))
	for _, p := range processes {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO spindump_processes
			(id, capture_id, pid, name, path, parent_pid, parent_name, footprint_mb, cpu_time_sec, thread_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, capture.ID, p.PID, p.Name, nullIfEmpty(p.Path), nullIfZero(p.ParentPID), nullIfEmpty(p.ParentName), p.FootprintMB, p.CPUTimeSec, p.ThreadCount)
		if err != nil {
			return fmt.Errorf("storage: insert spindump_processes: %w", err)
		}
		procIDs[p.PID] = id
	}

	for _, t := range threads {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		processID := t.ProcessID
		_, err := tx.Exec(`INSERT INTO spindump_threads
			(id, process_id, thread_id, thread_name, sample_count, priority, cpu_time_sec, state, blocked_on)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, processID, t.ThreadID, nullIfEmpty(t.ThreadName), t.SampleCount, t.Priority, t.CPUTimeSec, nullIfEmpty(t.State), nullIfEmpty(t.BlockedOn))
		if err != nil {
			return fmt.Errorf("storage: insert spindump_threads: %w", err)
		}
	}

	for _, l := range logs {
		id := l.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO log_entries
			(id, capture_id, timestamp, mach_timestamp, subsystem, category, process_name, process_id, message_type, event_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, capture.ID, l.Timestamp.Unix(), nullIfZero(int(l.MachTimestamp)), nullIfEmpty(l.Subsystem), nullIfEmpty(l.Category), nullIfEmpty(l.ProcessName), l.ProcessID, nullIfEmpty(l.MessageType), nullIfEmpty(l.EventMessage))
		if err != nil {
			return fmt.Errorf("storage: insert log_entries: %w", err)
		}
	}

	if buf != nil {
		id := buf.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO buffer_context (id, capture_id, sample_count, peak_score, culprits)
			VALUES (?, ?, ?, ?, ?)`,
			id, capture.ID, buf.SampleCount, buf.PeakScore, buf.CulpritsJSON)
		if err != nil {
			return fmt.Errorf("storage: insert buffer_context: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit forensics tx: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullIfZero(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
