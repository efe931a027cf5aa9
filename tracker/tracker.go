// Package tracker runs the per-PID event-lifecycle state machine: it
// opens, checkpoints, and closes a tracking event while a process stays in
// a bad band, with a sustained-N-samples debounce on the way out.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hluisi/roguehunter/model"
)

// Store is the persistence boundary the tracker writes through,
// implemented by package storage. Defined here, not in storage, so tracker
// has no import-time dependency on the database driver.
type Store interface {
	OpenEvent(pid int, command string, bootTime float64, entryTime time.Time, entryBand model.Band, entry model.ProcessScore) (eventID, snapshotID string, err error)
	UpdatePeak(eventID string, peakScore int, peakBand model.Band, peakSnapshotID string) error
	InsertSnapshot(eventID string, snapType model.SnapshotType, capturedAt float64, score model.ProcessScore) (snapshotID string, err error)
	CloseEvent(eventID string, exitTime time.Time) error
	CloseDisappeared(eventID string, exitTime time.Time) error
	LoadOpenEvents(bootTime float64) (open []model.Event, stale []model.Event, err error)
}

// ForensicsTrigger carries the parameters passed to the async forensics
// callback.
type ForensicsTrigger struct {
	EventID string
	PID     int
	Band    model.Band
	Score   int
}

// Config holds the tracker's tunables, sourced from the bands.* options.
type Config struct {
	TrackingThreshold         int
	ForensicsBand             model.Band
	CheckpointIntervalSamples map[model.Band]int
	ExitStabilitySamples      int
	EventCooldownSeconds      float64
	TickPeriod                time.Duration
}

// DefaultConfig returns the default lifecycle tunables. High and critical
// checkpoint on every tick.
func DefaultConfig() Config {
	return Config{
		TrackingThreshold: 30,
		ForensicsBand:     model.BandCritical,
		CheckpointIntervalSamples: map[model.Band]int{
			model.BandMedium:   60,
			model.BandElevated: 30,
			model.BandHigh:     1,
			model.BandCritical: 1,
		},
		ExitStabilitySamples: 15,
		EventCooldownSeconds: 30,
		TickPeriod:           333 * time.Millisecond,
	}
}

func (c Config) checkpointInterval(band model.Band) int {
	if n, ok := c.CheckpointIntervalSamples[band]; ok && n > 0 {
		return n
	}
	return 1
}

// trackedPID is the tracker's in-memory state for one ROGUE pid. An entry
// with an empty eventID is a cooldown placeholder left behind after close.
type trackedPID struct {
	eventID               string
	pid                   int
	command               string
	peakScore             int
	peakBand              model.Band
	peakSnapshotID        string
	lastCheckpointAt      time.Time
	belowThresholdSamples int
	lastSeen              time.Time
	cooldownUntil         time.Time
}

// Tracker owns ROGUE-pid lifecycle state exclusively; nothing else reads
// or writes it.
type Tracker struct {
	mu          sync.Mutex
	store       Store
	cfg         Config
	state       map[int]*trackedPID
	bootTime    float64
	onForensics func(context.Context, ForensicsTrigger)
}

// New constructs a Tracker. onForensics is invoked asynchronously (in its
// own goroutine) for every tracked sample whose band is at or above
// cfg.ForensicsBand, on entry and on each later tick; it may be nil.
func New(store Store, cfg Config, bootTime float64, onForensics func(context.Context, ForensicsTrigger)) *Tracker {
	return &Tracker{
		store:       store,
		cfg:         cfg,
		state:       make(map[int]*trackedPID),
		bootTime:    bootTime,
		onForensics: onForensics,
	}
}

// Restore rehydrates tracker state after a daemon restart: open events
// whose boot_time matches the current boot come back as tracked PIDs;
// stale ones (from a previous boot) are force-closed with no exit
// snapshot.
func (t *Tracker) Restore(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	open, stale, err := t.store.LoadOpenEvents(t.bootTime)
	if err != nil {
		return fmt.Errorf("tracker: load open events: %w", err)
	}
	for _, e := range stale {
		boot := time.Unix(int64(e.BootTime), 0)
		if err := t.store.CloseDisappeared(e.ID, boot); err != nil {
			return fmt.Errorf("tracker: force-close stale event %s: %w", e.ID, err)
		}
	}
	for _, e := range open {
		t.state[e.PID] = &trackedPID{
			eventID:          e.ID,
			pid:              e.PID,
			command:          e.Command,
			peakScore:        e.PeakScore,
			peakBand:         e.PeakBand,
			peakSnapshotID:   e.PeakSnapshotID,
			lastCheckpointAt: time.Now(),
		}
	}
	return nil
}

// Update advances every tracked PID's lifecycle against the current tick's
// rogues: open on threshold crossing, checkpoint on schedule, close after
// the exit debounce, and drop PIDs that disappeared from the host.
func (t *Tracker) Update(ctx context.Context, rogues []model.ProcessScore, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[int]*model.ProcessScore, len(rogues))
	for i := range rogues {
		seen[rogues[i].PID] = &rogues[i]
	}

	// Tracked PIDs absent from this tick for over two tick periods have
	// disappeared from the host: close with no exit snapshot. Cooldown
	// placeholders have no event to close; they only expire.
	disappearThreshold := 2 * t.cfg.TickPeriod
	for pid, tp := range t.state {
		if tp.eventID == "" {
			if !now.Before(tp.cooldownUntil) {
				delete(t.state, pid)
			}
			continue
		}
		if _, ok := seen[pid]; ok {
			continue
		}
		if now.Sub(tp.lastSeen) < disappearThreshold {
			continue
		}
		if err := t.store.CloseDisappeared(tp.eventID, now); err != nil {
			return fmt.Errorf("tracker: close disappeared pid %d: %w", pid, err)
		}
		delete(t.state, pid)
	}

	for pid, ps := range seen {
		tp, tracked := t.state[pid]
		if !tracked || tp.eventID == "" {
			// Not tracked, or a cooldown placeholder left behind by a
			// close: either way there is no open event to update.
			if ps.Score < t.cfg.TrackingThreshold {
				continue
			}
			if t.onCooldown(pid, now) {
				continue
			}
			if err := t.open(pid, ps, now); err != nil {
				return err
			}
			continue
		}

		tp.lastSeen = now
		band := model.Band(ps.Band.Current)

		if ps.Score > tp.peakScore {
			tp.peakScore = ps.Score
			tp.peakBand = band
			snapID, err := t.store.InsertSnapshot(tp.eventID, model.SnapshotCheckpoint, ps.CapturedAt, *ps)
			if err != nil {
				return fmt.Errorf("tracker: insert peak snapshot pid %d: %w", pid, err)
			}
			tp.peakSnapshotID = snapID
			if err := t.store.UpdatePeak(tp.eventID, tp.peakScore, tp.peakBand, snapID); err != nil {
				return fmt.Errorf("tracker: update peak pid %d: %w", pid, err)
			}
		}

		if ps.Score >= t.cfg.TrackingThreshold {
			tp.belowThresholdSamples = 0
			if now.Sub(tp.lastCheckpointAt) >= time.Duration(t.cfg.checkpointInterval(band))*t.cfg.TickPeriod {
				if _, err := t.store.InsertSnapshot(tp.eventID, model.SnapshotCheckpoint, ps.CapturedAt, *ps); err != nil {
					return fmt.Errorf("tracker: insert checkpoint pid %d: %w", pid, err)
				}
				tp.lastCheckpointAt = now
			}
		} else {
			tp.belowThresholdSamples++
			if tp.belowThresholdSamples >= t.cfg.ExitStabilitySamples {
				if _, err := t.store.InsertSnapshot(tp.eventID, model.SnapshotExit, ps.CapturedAt, *ps); err != nil {
					return fmt.Errorf("tracker: insert exit snapshot pid %d: %w", pid, err)
				}
				if err := t.store.CloseEvent(tp.eventID, now); err != nil {
					return fmt.Errorf("tracker: close event pid %d: %w", pid, err)
				}
				tp.cooldownUntil = now.Add(time.Duration(t.cfg.EventCooldownSeconds * float64(time.Second)))
				t.state[pid] = &trackedPID{cooldownUntil: tp.cooldownUntil}
				continue
			}
		}

		if band.Severity() >= t.cfg.ForensicsBand.Severity() {
			t.triggerForensics(ctx, tp.eventID, pid, band, ps.Score)
		}
	}
	return nil
}

// onCooldown reports whether pid is within its post-close cooldown window,
// clearing the placeholder entry once the window has passed.
func (t *Tracker) onCooldown(pid int, now time.Time) bool {
	tp, ok := t.state[pid]
	if !ok || tp.eventID != "" {
		return false
	}
	if now.Before(tp.cooldownUntil) {
		return true
	}
	delete(t.state, pid)
	return false
}

func (t *Tracker) open(pid int, ps *model.ProcessScore, now time.Time) error {
	entryBand := model.Band(ps.Band.Current)
	eventID, snapID, err := t.store.OpenEvent(pid, ps.Command, t.bootTime, now, entryBand, *ps)
	if err != nil {
		return fmt.Errorf("tracker: open event pid %d: %w", pid, err)
	}
	t.state[pid] = &trackedPID{
		eventID:          eventID,
		pid:              pid,
		command:          ps.Command,
		peakScore:        ps.Score,
		peakBand:         entryBand,
		peakSnapshotID:   snapID,
		lastCheckpointAt: now,
		lastSeen:         now,
	}
	if entryBand.Severity() >= t.cfg.ForensicsBand.Severity() {
		t.triggerForensics(context.Background(), eventID, pid, entryBand, ps.Score)
	}
	return nil
}

func (t *Tracker) triggerForensics(ctx context.Context, eventID string, pid int, band model.Band, score int) {
	if t.onForensics == nil {
		return
	}
	trig := ForensicsTrigger{EventID: eventID, PID: pid, Band: band, Score: score}
	go t.onForensics(ctx, trig)
}

// Tracked reports the number of PIDs currently in the ROGUE state, for the
// telemetry package's open-event gauge.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, tp := range t.state {
		if tp.eventID != "" {
			n++
		}
	}
	return n
}
