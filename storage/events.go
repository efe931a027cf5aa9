package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hluisi/roguehunter/model"
)

// OpenEvent inserts a new process_events row plus its entry snapshot in a
// single transaction.
func (s *Store) OpenEvent(pid int, command string, bootTime float64, entryTime time.Time, entryBand model.Band, entry model.ProcessScore) (eventID, snapshotID string, err error) {
	eventID = uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", "", fmt.Errorf("storage: begin open-event tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO process_events
		(id, pid, command, boot_time, entry_time, exit_time, entry_band, peak_band, peak_score, peak_snapshot_id)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, NULL)`,
		eventID, pid, command, bootTime, entryTime.Unix(), string(entryBand), string(entryBand), entry.Score)
	if err != nil {
		return "", "", fmt.Errorf("storage: insert event: %w", err)
	}

	snapshotID, err = insertSnapshotTx(tx, eventID, model.SnapshotEntry, entry)
	if err != nil {
		return "", "", err
	}

	if _, err := tx.Exec(`UPDATE process_events SET peak_snapshot_id = ? WHERE id = ?`, snapshotID, eventID); err != nil {
		return "", "", fmt.Errorf("storage: set initial peak snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("storage: commit open-event tx: %w", err)
	}
	return eventID, snapshotID, nil
}

// UpdatePeak rewrites the event's peak pointer; the prior peak snapshot
// remains untouched as an ordinary checkpoint row.
func (s *Store) UpdatePeak(eventID string, peakScore int, peakBand model.Band, peakSnapshotID string) error {
	_, err := s.db.Exec(`UPDATE process_events SET peak_score = ?, peak_band = ?, peak_snapshot_id = ? WHERE id = ?`,
		peakScore, string(peakBand), peakSnapshotID, eventID)
	if err != nil {
		return fmt.Errorf("storage: update peak for event %s: %w", eventID, err)
	}
	return nil
}

// InsertSnapshot inserts a checkpoint or exit process_snapshots row.
func (s *Store) InsertSnapshot(eventID string, snapType model.SnapshotType, capturedAt float64, score model.ProcessScore) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("storage: begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	id, err := insertSnapshotTx(tx, eventID, snapType, score)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("storage: commit snapshot tx: %w", err)
	}
	return id, nil
}

// CloseEvent sets exit_time. It inserts no additional snapshot; the caller
// already inserted the exit snapshot via InsertSnapshot.
func (s *Store) CloseEvent(eventID string, exitTime time.Time) error {
	_, err := s.db.Exec(`UPDATE process_events SET exit_time = ? WHERE id = ?`, exitTime.Unix(), eventID)
	if err != nil {
		return fmt.Errorf("storage: close event %s: %w", eventID, err)
	}
	return nil
}

// CloseDisappeared closes an event with no exit snapshot, for processes
// that vanished from the host and for stale events from a previous boot.
func (s *Store) CloseDisappeared(eventID string, exitTime time.Time) error {
	return s.CloseEvent(eventID, exitTime)
}

// LoadOpenEvents returns open events split by whether their boot_time
// matches the current boot, for tracker.Tracker.Restore.
func (s *Store) LoadOpenEvents(bootTime float64) (open []model.Event, stale []model.Event, err error) {
	rows, err := s.db.Query(`SELECT id, pid, command, boot_time, entry_time, entry_band, peak_band, peak_score, peak_snapshot_id
		FROM process_events WHERE exit_time IS NULL`)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: query open events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e              model.Event
			entryUnix      int64
			peakSnapshotID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.PID, &e.Command, &e.BootTime, &entryUnix, &e.EntryBand, &e.PeakBand, &e.PeakScore, &peakSnapshotID); err != nil {
			return nil, nil, fmt.Errorf("storage: scan open event: %w", err)
		}
		e.EntryTime = time.Unix(entryUnix, 0)
		if peakSnapshotID.Valid {
			e.PeakSnapshotID = peakSnapshotID.String
		}
		if e.BootTime == bootTime {
			open = append(open, e)
		} else {
			stale = append(stale, e)
		}
	}
	return open, stale, rows.Err()
}

// insertSnapshotTx is the shared row-builder for OpenEvent's entry
// snapshot and InsertSnapshot's checkpoint/exit snapshots, mirroring every
// MetricValue as current/low/high triples.
func insertSnapshotTx(tx *sql.Tx, eventID string, snapType model.SnapshotType, p model.ProcessScore) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(`INSERT INTO process_snapshots (
		id, event_id, snapshot_type, captured_at, command,
		cpu_current, cpu_low, cpu_high,
		mem_current, mem_low, mem_high, mem_peak,
		pageins, pageins_rate, faults, faults_rate,
		disk_io_current, disk_io_low, disk_io_high, disk_io_rate,
		csw, csw_rate, syscalls, syscalls_rate, threads, mach_msgs, mach_msgs_rate,
		instructions, cycles, ipc,
		energy, energy_rate, wakeups, wakeups_rate,
		runnable_time, runnable_time_rate, qos_interactive, qos_interactive_rate,
		state_current, state_low, state_high,
		priority_current, priority_low, priority_high,
		score, band_current, band_low, band_high,
		cpu_share, gpu_share, mem_share, disk_share, wakeups_share,
		disproportionality, dominant_resource
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, eventID, string(snapType), p.CapturedAt, p.Command,
		p.CPU.Current, p.CPU.Low, p.CPU.High,
		p.Mem.Current, p.Mem.Low, p.Mem.High, p.MemPeak,
		p.Pageins, p.PageinsRate, p.Faults, p.FaultsRate,
		p.DiskIO.Current, p.DiskIO.Low, p.DiskIO.High, p.DiskIORate,
		p.CSW, p.CSWRate, p.Syscalls, p.SyscallsRate, p.Threads, p.MachMsgs, p.MachMsgsRate,
		p.Instructions, p.Cycles, p.IPC,
		p.Energy, p.EnergyRate, p.Wakeups, p.WakeupsRate,
		p.RunnableTime, p.RunnableTimeRate, p.QoSInteractive, p.QoSInteractiveRate,
		p.State.Current, p.State.Low, p.State.High,
		p.Priority.Current, p.Priority.Low, p.Priority.High,
		p.Score, p.Band.Current, p.Band.Low, p.Band.High,
		p.CPUShare, p.GPUShare, p.MemShare, p.DiskShare, p.WakeupsShare,
		p.Disproportionality, string(p.DominantResource),
	)
	if err != nil {
		return "", fmt.Errorf("storage: insert %s snapshot: %w", snapType, err)
	}
	return id, nil
}
