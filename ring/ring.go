// Package ring holds a fixed-capacity FIFO of sample batches used to
// enrich each new batch with per-process low/high ranges over the window.
package ring

import (
	"sync"

	"github.com/hluisi/roguehunter/model"
)

// Window is the rolling batch history. The zero value is not usable;
// construct with NewWindow. The tick loop pushes; the stream server and
// forensics worker read concurrently via Freeze, so every method locks.
type Window struct {
	mu   sync.Mutex
	buf  []model.SampleBatch
	head int
	size int
	cap  int
}

// NewWindow creates a ring buffer with capacity w, floored at 1 so a
// misconfigured value never produces a buffer Push could not hold
// anything in.
func NewWindow(w int) *Window {
	if w < 1 {
		w = 1
	}
	return &Window{
		buf: make([]model.SampleBatch, w),
		cap: w,
	}
}

// Push appends a batch, evicting the oldest if the window is full. O(1).
// Callers must not push batches out of timestamp order.
func (w *Window) Push(batch model.SampleBatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.head] = batch
	w.head = (w.head + 1) % w.cap
	if w.size < w.cap {
		w.size++
	}
}

// UpdateLatest replaces the most recently pushed batch in place, used
// after ComputeLowHigh enriches it.
func (w *Window) UpdateLatest(batch model.SampleBatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == 0 {
		return
	}
	idx := (w.head - 1 + w.cap) % w.cap
	w.buf[idx] = batch
}

// Len returns the number of batches currently stored.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// at returns a pointer into the live buffer; callers must hold mu.
func (w *Window) at(i int) *model.SampleBatch {
	if i < 0 || i >= w.size {
		return nil
	}
	idx := (w.head - w.size + i + w.cap) % w.cap
	return &w.buf[idx]
}

// Latest returns a copy of the most recently pushed batch, or nil if
// empty.
func (w *Window) Latest() *model.SampleBatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == 0 {
		return nil
	}
	b := *w.at(w.size - 1)
	return &b
}

// Get returns a copy of the batch at position i, 0 being the oldest
// currently held.
func (w *Window) Get(i int) *model.SampleBatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.at(i)
	if p == nil {
		return nil
	}
	b := *p
	return &b
}

// Freeze returns an immutable view of the window's current contents,
// oldest first, suitable for handing to forensics without locking out the
// live buffer. The returned slice is a shallow copy; ProcessScore values
// within it are not mutated once returned.
func (w *Window) Freeze() []model.SampleBatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.SampleBatch, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = *w.at(i)
	}
	return out
}

// ComputeLowHigh walks the window and, for every ProcessScore in current's
// Rogues, sets every MetricValue/MetricValueStr field's low/high to the
// min/max (or severity bound) of that PID's values across the window plus
// the current sample. It returns the enriched batch; it does not mutate
// the window itself; callers push/UpdateLatest current separately.
// Idempotent: running it twice on the same batch (with the window
// unchanged) yields the same result, since each field only ever widens
// toward values already present in the window.
func (w *Window) ComputeLowHigh(current model.SampleBatch) model.SampleBatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	rogues := make([]model.ProcessScore, len(current.Rogues))
	copy(rogues, current.Rogues)
	current.Rogues = rogues
	for i := range current.Rogues {
		ps := &current.Rogues[i]
		for j := 0; j < w.size; j++ {
			prior := w.at(j)
			for _, other := range prior.Rogues {
				if other.PID != ps.PID {
					continue
				}
				widen(ps, &other)
			}
		}
	}
	return current
}

// widen extends cur's MetricValue low/high bounds to include prior's
// current values, for a matching PID observed earlier in the window.
func widen(cur *model.ProcessScore, prior *model.ProcessScore) {
	cur.CPU.Widen(prior.CPU.Current)
	cur.Mem.Widen(prior.Mem.Current)
	cur.DiskIO.Widen(prior.DiskIO.Current)
	cur.Priority.Widen(prior.Priority.Current)
	cur.State.WidenState(model.State(prior.State.Current))
	cur.Band.WidenBand(model.Band(prior.Band.Current))
}
