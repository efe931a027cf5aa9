// Package forensics implements C4, the forensics orchestrator: a debounced,
// async capture pipeline that dumps a kernel trace and a system log window,
// decodes and parses both, summarizes the ring buffer's recent culprits, and
// persists the result as one forensic_captures row plus its children. The
// trace dump and log dump run concurrently; neither aborts on the other's
// failure.
package forensics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/hluisi/roguehunter/model"
)

// Store is the persistence boundary the orchestrator writes through,
// implemented by package storage. Defined here so forensics has no
// import-time dependency on the database driver.
type Store interface {
	InsertForensicCapture(capture model.ForensicCapture, processes []model.SpindumpProcess, threads []model.SpindumpThread, logs []model.LogEntry, buf *model.BufferContext) error
}

// Config holds the orchestrator's tunables.
type Config struct {
	DebounceSeconds float64
	LogWindow       time.Duration
	CommandTimeout  time.Duration
}

// DefaultConfig returns the default capture tunables.
func DefaultConfig() Config {
	return Config{
		DebounceSeconds: 5,
		LogWindow:       5 * time.Second,
		CommandTimeout:  30 * time.Second,
	}
}

// Orchestrator runs one capture pipeline at a time per the debounce rule;
// concurrent triggers while one capture is already in flight are folded
// into the same debounce window rather than queued.
type Orchestrator struct {
	mu          sync.Mutex
	store       Store
	runner      Runner
	cfg         Config
	capturing   bool
	lastSuccess time.Time
	observe     func(tailspinStatus, logsStatus model.CaptureStatus)
}

// New constructs an Orchestrator. runner may be a fake in tests.
func New(store Store, runner Runner, cfg Config) *Orchestrator {
	return &Orchestrator{store: store, runner: runner, cfg: cfg}
}

// OnCapture registers fn to be called with each capture's sub-step
// statuses once the pipeline finishes, before persisting. Used by the
// daemon to feed telemetry.Metrics.ObserveForensicsCapture.
func (o *Orchestrator) OnCapture(fn func(tailspinStatus, logsStatus model.CaptureStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observe = fn
}

// Capture runs the capture pipeline for one trigger. eventID and pid
// identify the rogue process that crossed into the forensics band;
// trigger is a short label persisted on the row (e.g. "band:critical");
// window is the ring buffer's frozen snapshot at trigger time.
//
// Debounce: if less than cfg.DebounceSeconds has elapsed since the last
// successful capture, or a capture is already in flight, Capture drops the
// request silently and returns nil.
func (o *Orchestrator) Capture(ctx context.Context, eventID string, pid int, trigger string, window []model.SampleBatch) error {
	o.mu.Lock()
	if o.capturing {
		o.mu.Unlock()
		return nil
	}
	if !o.lastSuccess.IsZero() {
		since := time.Since(o.lastSuccess).Seconds()
		if since < o.cfg.DebounceSeconds {
			o.mu.Unlock()
			return nil
		}
	}
	o.capturing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.capturing = false
		o.mu.Unlock()
	}()

	capture := model.ForensicCapture{
		ID:         uuid.NewString(),
		EventID:    eventID,
		CapturedAt: time.Now(),
		Trigger:    trigger,
	}

	tracePath := tempTracePath(capture.ID)
	defer removeQuiet(tracePath)

	var (
		decoded  decodeResult
		logBytes []byte
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.runner.Tailspin(gctx, tracePath); err != nil {
			capture.TailspinStatus = model.StatusFailed
			return nil // step failure recorded on the row, not propagated
		}
		text, err := o.runner.Decode(gctx, tracePath)
		if err != nil {
			capture.TailspinStatus = model.StatusFailed
			return nil
		}
		decoded = parseSpindump(text)
		capture.TailspinStatus = model.StatusOK
		return nil
	})
	g.Go(func() error {
		out, err := o.runner.LogShow(gctx, o.cfg.LogWindow)
		if err != nil {
			capture.LogsStatus = model.StatusFailed
			return nil
		}
		logBytes = out
		capture.LogsStatus = model.StatusOK
		return nil
	})
	_ = g.Wait() // both steps fold their own error into a status field; nothing to propagate here

	var logs []model.LogEntry
	if capture.LogsStatus == model.StatusOK {
		logs = parseLogShow(logBytes)
	}

	for i := range decoded.processes {
		decoded.processes[i].CaptureID = capture.ID
	}
	for i := range logs {
		logs[i].CaptureID = capture.ID
	}

	buf := summarizeBuffer(window)
	buf.ID = uuid.NewString()
	buf.CaptureID = capture.ID
	capture.BufferContextID = buf.ID

	o.mu.Lock()
	observe := o.observe
	o.mu.Unlock()
	if observe != nil {
		observe(capture.TailspinStatus, capture.LogsStatus)
	}

	if err := o.store.InsertForensicCapture(capture, decoded.processes, decoded.threads, logs, &buf); err != nil {
		return fmt.Errorf("forensics: persist capture %s: %w", capture.ID, err)
	}

	o.mu.Lock()
	o.lastSuccess = time.Now()
	o.mu.Unlock()
	return nil
}

// culprit tallies how often one pid/command pair appeared in the window's
// top-N, for buffer_context.culprits_json.
type culprit struct {
	PID     int    `json:"pid"`
	Command string `json:"command"`
	Count   int    `json:"count"`
}

const maxCulprits = 10

// summarizeBuffer computes sample_count and peak_score over the whole
// window, with culprits ranked by how often a pid appeared in the
// per-sample top-N.
func summarizeBuffer(window []model.SampleBatch) model.BufferContext {
	counts := make(map[int]*culprit)
	peak := 0
	for _, batch := range window {
		if batch.MaxScore > peak {
			peak = batch.MaxScore
		}
		for _, r := range batch.Rogues {
			c, ok := counts[r.PID]
			if !ok {
				c = &culprit{PID: r.PID, Command: r.Command}
				counts[r.PID] = c
			}
			c.Count++
		}
	}

	list := make([]culprit, 0, len(counts))
	for _, c := range counts {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].PID < list[j].PID
	})
	if len(list) > maxCulprits {
		list = list[:maxCulprits]
	}

	culpritsJSON, err := json.Marshal(list)
	if err != nil {
		culpritsJSON = []byte("[]")
	}

	return model.BufferContext{
		SampleCount:  len(window),
		PeakScore:    peak,
		CulpritsJSON: string(culpritsJSON),
	}
}
