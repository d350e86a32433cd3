package util

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Repeater runs a task on a fixed interval until stopped. A tick that fires
// while the previous run is still in flight is skipped, never queued.
type Repeater struct {
	interval func() time.Duration
	task     func(ctx context.Context)

	running atomic.Bool
	skipped atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRepeater creates a Repeater. interval is consulted before every wait so
// callers can vary the cadence (e.g. by market hours).
func NewRepeater(interval func() time.Duration, task func(ctx context.Context)) *Repeater {
	return &Repeater{interval: interval, task: task}
}

// Start launches the loop. It returns immediately; the loop ends when ctx is
// cancelled or Stop is called. Starting an already started Repeater is a no-op.
func (r *Repeater) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

// Stop ends the loop and waits for it to exit. An in-flight task sees its
// context cancelled but is not waited for.
func (r *Repeater) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Skipped reports how many ticks were dropped because a run was in flight.
func (r *Repeater) Skipped() int64 {
	return r.skipped.Load()
}

func (r *Repeater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if err := Sleep(ctx, r.interval()); err != nil {
			return
		}
		r.Tick(ctx)
	}
}

// Tick runs the task once in the background unless a run is already in
// flight. It reports whether a run was started.
func (r *Repeater) Tick(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		return false
	}
	go func() {
		defer r.running.Store(false)
		r.task(ctx)
	}()
	return true
}
