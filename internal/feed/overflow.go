package feed

import (
	"sync"
	"time"
)

// Handle measures one rendered record body.
type Handle interface {
	// ContentHeight is the height of the full, unclamped content.
	ContentHeight() int
	// ClampHeight is the height of the clamped container.
	ClampHeight() int
}

// Tracker holds per-record expand and overflow state. Handles are registered
// on mount and dropped on unmount; measurement always runs on a timer, never
// inline with the caller.
type Tracker struct {
	debounce time.Duration
	onChange func()

	mu          sync.Mutex
	handles     map[string]Handle
	expanded    map[string]bool
	overflowing map[string]bool
	pending     *time.Timer
	resize      *time.Timer
	closed      bool
}

// NewTracker creates a Tracker. onChange, if non-nil, is called after a
// measurement pass that changed any overflow flag.
func NewTracker(debounce time.Duration, onChange func()) *Tracker {
	return &Tracker{
		debounce:    debounce,
		onChange:    onChange,
		handles:     make(map[string]Handle),
		expanded:    make(map[string]bool),
		overflowing: make(map[string]bool),
	}
}

// Mount registers (or replaces) the handle for id and schedules a pass.
func (t *Tracker) Mount(id string, h Handle) {
	t.mu.Lock()
	t.handles[id] = h
	t.mu.Unlock()
	t.Schedule()
}

// Unmount drops all state for id.
func (t *Tracker) Unmount(id string) {
	t.mu.Lock()
	delete(t.handles, id)
	delete(t.expanded, id)
	delete(t.overflowing, id)
	t.mu.Unlock()
}

// Toggle flips the expanded state of id and returns the new state. A record
// that collapses again is re-measured, since its text may have changed.
func (t *Tracker) Toggle(id string) bool {
	t.mu.Lock()
	exp := !t.expanded[id]
	t.expanded[id] = exp
	t.mu.Unlock()
	if !exp {
		t.Schedule()
	}
	return exp
}

// Expanded reports whether id is expanded.
func (t *Tracker) Expanded(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded[id]
}

// Overflowing reports whether id's clamped body hides content.
func (t *Tracker) Overflowing(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overflowing[id]
}

// Schedule queues a measurement pass on the next timer tick. Calls made
// while a pass is already queued are folded into it.
func (t *Tracker) Schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.pending != nil {
		return
	}
	t.pending = time.AfterFunc(0, t.runPending)
}

func (t *Tracker) runPending() {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
	t.Measure()
}

// Resize schedules a pass after the debounce interval, restarting the wait
// on every call.
func (t *Tracker) Resize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.resize != nil {
		t.resize.Stop()
	}
	t.resize = time.AfterFunc(t.debounce, t.Measure)
}

// Measure runs a pass now over every mounted, collapsed record.
func (t *Tracker) Measure() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	targets := make(map[string]Handle, len(t.handles))
	for id, h := range t.handles {
		if !t.expanded[id] {
			targets[id] = h
		}
	}
	t.mu.Unlock()

	results := make(map[string]bool, len(targets))
	for id, h := range targets {
		results[id] = h.ContentHeight() > h.ClampHeight()
	}

	changed := false
	t.mu.Lock()
	for id, over := range results {
		// Skip records unmounted or expanded while measuring.
		if _, ok := t.handles[id]; !ok || t.expanded[id] {
			continue
		}
		if t.overflowing[id] != over {
			t.overflowing[id] = over
			changed = true
		}
	}
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange()
	}
}

// Close stops pending timers. Further scheduling is ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	if t.resize != nil {
		t.resize.Stop()
		t.resize = nil
	}
}
