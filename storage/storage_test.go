package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hluisi/roguehunter/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roguehunter.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleScore(pid int, score int, band model.Band) model.ProcessScore {
	return model.ProcessScore{
		PID:     pid,
		Command: "rogueapp",
		Score:   score,
		Band:    model.NewBandValue(band),
		CPU:     model.NewMetricValue(12.5),
		Mem:     model.NewMetricValue(int64(1024)),
		DiskIO:  model.NewMetricValue(int64(0)),
		State:   model.NewStateValue(model.StateRunning),
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	var version int
	if err := s.db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&version); err != nil {
		t.Fatalf("expected schema_version row: %v", err)
	}
	if version != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion, version)
	}
}

func TestOpenRecreatesOnVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roguehunter.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.OpenEvent(1, "cmd", 1, time.Now(), model.BandMedium, sampleScore(1, 40, model.BandMedium)); err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, SchemaVersion+1); err != nil {
		t.Fatalf("force version bump: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	open, stale, err := s2.LoadOpenEvents(1)
	if err != nil {
		t.Fatalf("LoadOpenEvents: %v", err)
	}
	if len(open) != 0 || len(stale) != 0 {
		t.Fatalf("expected schema mismatch to drop all prior data, got open=%d stale=%d", len(open), len(stale))
	}
}

func TestOpenEventAndLoadOpenEventsSplitsByBootTime(t *testing.T) {
	s := openTestStore(t)

	eventID, snapID, err := s.OpenEvent(100, "rogueapp", 42, time.Now(), model.BandMedium, sampleScore(100, 40, model.BandMedium))
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
	if eventID == "" || snapID == "" {
		t.Fatalf("expected non-empty ids, got event=%q snap=%q", eventID, snapID)
	}

	open, stale, err := s.LoadOpenEvents(42)
	if err != nil {
		t.Fatalf("LoadOpenEvents: %v", err)
	}
	if len(open) != 1 || len(stale) != 0 {
		t.Fatalf("expected 1 open 0 stale for matching boot time, got open=%d stale=%d", len(open), len(stale))
	}
	if open[0].ID != eventID || open[0].PID != 100 {
		t.Fatalf("unexpected open event: %+v", open[0])
	}

	open, stale, err = s.LoadOpenEvents(99)
	if err != nil {
		t.Fatalf("LoadOpenEvents: %v", err)
	}
	if len(open) != 0 || len(stale) != 1 {
		t.Fatalf("expected 0 open 1 stale for mismatched boot time, got open=%d stale=%d", len(open), len(stale))
	}
}

func TestUpdatePeakAndInsertSnapshot(t *testing.T) {
	s := openTestStore(t)

	eventID, _, err := s.OpenEvent(100, "rogueapp", 1, time.Now(), model.BandMedium, sampleScore(100, 40, model.BandMedium))
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}

	snapID, err := s.InsertSnapshot(eventID, model.SnapshotCheckpoint, 123.0, sampleScore(100, 60, model.BandElevated))
	if err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if err := s.UpdatePeak(eventID, 60, model.BandElevated, snapID); err != nil {
		t.Fatalf("UpdatePeak: %v", err)
	}

	var peakScore int
	var peakBand string
	if err := s.db.QueryRow(`SELECT peak_score, peak_band FROM process_events WHERE id = ?`, eventID).Scan(&peakScore, &peakBand); err != nil {
		t.Fatalf("query peak: %v", err)
	}
	if peakScore != 60 || peakBand != string(model.BandElevated) {
		t.Fatalf("expected peak 60/elevated, got %d/%s", peakScore, peakBand)
	}
}

func TestCloseEventSetsExitTime(t *testing.T) {
	s := openTestStore(t)
	eventID, _, err := s.OpenEvent(100, "rogueapp", 1, time.Now(), model.BandMedium, sampleScore(100, 40, model.BandMedium))
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}

	open, _, err := s.LoadOpenEvents(1)
	if err != nil || len(open) != 1 {
		t.Fatalf("expected 1 open event before close: err=%v open=%d", err, len(open))
	}

	if err := s.CloseEvent(eventID, time.Now()); err != nil {
		t.Fatalf("CloseEvent: %v", err)
	}

	open, _, err = s.LoadOpenEvents(1)
	if err != nil {
		t.Fatalf("LoadOpenEvents after close: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected 0 open events after close, got %d", len(open))
	}
}

func TestInsertForensicCaptureWithChildren(t *testing.T) {
	s := openTestStore(t)
	eventID, _, err := s.OpenEvent(100, "rogueapp", 1, time.Now(), model.BandCritical, sampleScore(100, 90, model.BandCritical))
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}

	capture := model.ForensicCapture{
		ID:              "cap-1",
		EventID:         eventID,
		CapturedAt:      time.Now(),
		Trigger:         "band:critical",
		TailspinStatus:  model.StatusOK,
		LogsStatus:      model.StatusFailed,
		BufferContextID: "buf-1",
	}
	processes := []model.SpindumpProcess{{ID: "sp-1", PID: 100, Name: "rogueapp", ThreadCount: 2}}
	threads := []model.SpindumpThread{{ID: "th-1", ProcessID: "sp-1", ThreadID: "0x1", SampleCount: 10}}
	logs := []model.LogEntry{{ID: "log-1", Timestamp: time.Now(), Subsystem: "com.apple.test", EventMessage: "hi"}}
	buf := &model.BufferContext{ID: "buf-1", SampleCount: 5, PeakScore: 90, CulpritsJSON: "[]"}

	if err := s.InsertForensicCapture(capture, processes, threads, logs, buf); err != nil {
		t.Fatalf("InsertForensicCapture: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM spindump_processes WHERE capture_id = ?`, "cap-1").Scan(&count); err != nil {
		t.Fatalf("count processes: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 spindump_processes row, got %d", count)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM spindump_threads WHERE process_id = ?`, "sp-1").Scan(&count); err != nil {
		t.Fatalf("count threads: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 spindump_threads row, got %d", count)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM log_entries WHERE capture_id = ?`, "cap-1").Scan(&count); err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 log_entries row, got %d", count)
	}
}

func TestPruneDeletesOnlyOldClosedEvents(t *testing.T) {
	s := openTestStore(t)

	openEventID, _, err := s.OpenEvent(1, "keepalive", 1, time.Now(), model.BandMedium, sampleScore(1, 40, model.BandMedium))
	if err != nil {
		t.Fatalf("OpenEvent (open): %v", err)
	}

	oldEventID, _, err := s.OpenEvent(2, "oldrogue", 1, time.Now(), model.BandMedium, sampleScore(2, 40, model.BandMedium))
	if err != nil {
		t.Fatalf("OpenEvent (to be pruned): %v", err)
	}
	oldExit := time.Now().Add(-30 * 24 * time.Hour)
	if err := s.CloseEvent(oldEventID, oldExit); err != nil {
		t.Fatalf("CloseEvent (old): %v", err)
	}

	recentEventID, _, err := s.OpenEvent(3, "recentrogue", 1, time.Now(), model.BandMedium, sampleScore(3, 40, model.BandMedium))
	if err != nil {
		t.Fatalf("OpenEvent (recent, closed): %v", err)
	}
	if err := s.CloseEvent(recentEventID, time.Now()); err != nil {
		t.Fatalf("CloseEvent (recent): %v", err)
	}

	n, err := s.Prune(14)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event pruned, got %d", n)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM process_events WHERE id = ?`, oldEventID).Scan(&count); err != nil {
		t.Fatalf("count old event: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected old event pruned")
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM process_events WHERE id IN (?, ?)`, openEventID, recentEventID).Scan(&count); err != nil {
		t.Fatalf("count survivors: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected the open and recent events to survive pruning, got %d", count)
	}
}
