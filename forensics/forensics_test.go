package forensics

import (
	"context"
	"testing"
	"time"

	"github.com/hluisi/roguehunter/model"
)

type fakeRunner struct {
	tailspinErr error
	decodeErr   error
	logShowErr  error
	decodeText  []byte
	logBytes    []byte
	calls       int
}

func (f *fakeRunner) Tailspin(ctx context.Context, outPath string) error {
	f.calls++
	return f.tailspinErr
}

func (f *fakeRunner) Decode(ctx context.Context, tracePath string) ([]byte, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.decodeText, nil
}

func (f *fakeRunner) LogShow(ctx context.Context, window time.Duration) ([]byte, error) {
	if f.logShowErr != nil {
		return nil, f.logShowErr
	}
	return f.logBytes, nil
}

type fakeStore struct {
	captures []model.ForensicCapture
}

func (f *fakeStore) InsertForensicCapture(capture model.ForensicCapture, processes []model.SpindumpProcess, threads []model.SpindumpThread, logs []model.LogEntry, buf *model.BufferContext) error {
	f.captures = append(f.captures, capture)
	return nil
}

func TestOrchestratorCaptureRecordsStatuses(t *testing.T) {
	runner := &fakeRunner{decodeText: []byte(sampleSpindumpText), logBytes: []byte(`{"timestamp":"2026-07-29 10:00:00.000000-0700","eventMessage":"hi"}`)}
	store := &fakeStore{}
	o := New(store, runner, Config{DebounceSeconds: 0, LogWindow: time.Second, CommandTimeout: time.Second})

	window := []model.SampleBatch{
		{MaxScore: 80, Rogues: []model.ProcessScore{{PID: 4242, Command: "rogueapp"}}},
	}

	if err := o.Capture(context.Background(), "event-1", 4242, "band:critical", window); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if len(store.captures) != 1 {
		t.Fatalf("expected 1 capture persisted, got %d", len(store.captures))
	}
	got := store.captures[0]
	if got.TailspinStatus != model.StatusOK || got.LogsStatus != model.StatusOK {
		t.Fatalf("expected both sub-steps ok, got %+v", got)
	}
	if got.EventID != "event-1" {
		t.Fatalf("unexpected event id: %q", got.EventID)
	}
}

func TestOrchestratorCapturePartialFailureStillPersists(t *testing.T) {
	runner := &fakeRunner{tailspinErr: errTest("tailspin unavailable"), logBytes: []byte(`{"eventMessage":"ok"}`)}
	store := &fakeStore{}
	o := New(store, runner, Config{DebounceSeconds: 0, LogWindow: time.Second, CommandTimeout: time.Second})

	err := o.Capture(context.Background(), "event-2", 1, "trigger", nil)
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if len(store.captures) != 1 {
		t.Fatalf("expected capture to persist despite tailspin failure")
	}
	got := store.captures[0]
	if got.TailspinStatus != model.StatusFailed {
		t.Fatalf("expected tailspin status failed, got %q", got.TailspinStatus)
	}
	if got.LogsStatus != model.StatusOK {
		t.Fatalf("expected logs status ok despite tailspin failure, got %q", got.LogsStatus)
	}
}

func TestOrchestratorDebounceDropsSecondCapture(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	o := New(store, runner, Config{DebounceSeconds: 60, LogWindow: time.Second, CommandTimeout: time.Second})

	if err := o.Capture(context.Background(), "event-1", 1, "first", nil); err != nil {
		t.Fatalf("first capture failed: %v", err)
	}
	if err := o.Capture(context.Background(), "event-1", 1, "second", nil); err != nil {
		t.Fatalf("second capture call should drop silently, not error: %v", err)
	}
	if len(store.captures) != 1 {
		t.Fatalf("expected the debounced second trigger to be dropped, got %d captures", len(store.captures))
	}
}

// blockingRunner parks Tailspin until released, so a test can hold one
// capture mid-pipeline while firing another.
type blockingRunner struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Tailspin(ctx context.Context, outPath string) error {
	close(b.entered)
	<-b.release
	return nil
}

func (b *blockingRunner) Decode(ctx context.Context, tracePath string) ([]byte, error) {
	return nil, nil
}

func (b *blockingRunner) LogShow(ctx context.Context, window time.Duration) ([]byte, error) {
	return nil, nil
}

func TestOrchestratorFoldsConcurrentCaptures(t *testing.T) {
	runner := &blockingRunner{entered: make(chan struct{}), release: make(chan struct{})}
	store := &fakeStore{}
	o := New(store, runner, Config{DebounceSeconds: 60, LogWindow: time.Second, CommandTimeout: time.Second})

	done := make(chan error, 1)
	go func() {
		done <- o.Capture(context.Background(), "event-1", 1, "first", nil)
	}()
	<-runner.entered

	// A trigger arriving while the first capture is mid-pipeline must drop
	// silently, not queue or persist a second row.
	if err := o.Capture(context.Background(), "event-1", 1, "second", nil); err != nil {
		t.Fatalf("overlapping capture should drop silently, got error: %v", err)
	}
	if len(store.captures) != 0 {
		t.Fatalf("expected nothing persisted while the first capture is in flight, got %d", len(store.captures))
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Fatalf("first capture failed: %v", err)
	}
	if len(store.captures) != 1 {
		t.Fatalf("expected exactly one capture persisted, got %d", len(store.captures))
	}
}

func TestSummarizeBufferRanksCulpritsByFrequency(t *testing.T) {
	window := []model.SampleBatch{
		{MaxScore: 50, Rogues: []model.ProcessScore{{PID: 1, Command: "a"}, {PID: 2, Command: "b"}}},
		{MaxScore: 90, Rogues: []model.ProcessScore{{PID: 1, Command: "a"}}},
		{MaxScore: 70, Rogues: []model.ProcessScore{{PID: 1, Command: "a"}, {PID: 2, Command: "b"}}},
	}

	buf := summarizeBuffer(window)
	if buf.SampleCount != 3 {
		t.Fatalf("expected sample_count 3, got %d", buf.SampleCount)
	}
	if buf.PeakScore != 90 {
		t.Fatalf("expected peak_score 90, got %d", buf.PeakScore)
	}
	if buf.CulpritsJSON == "" || buf.CulpritsJSON == "[]" {
		t.Fatalf("expected non-empty culprits JSON")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
