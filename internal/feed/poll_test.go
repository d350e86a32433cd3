package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerRefreshes(t *testing.T) {
	var fetches atomic.Int64
	src := SourceFunc(func(ctx context.Context, q Query) (Result, error) {
		fetches.Add(1)
		return Result{Records: distinct("p", 3), Total: 3}, nil
	})
	f := New(src, Options{})
	p := NewPoller(f, 5*time.Millisecond, 5*time.Millisecond, nil)
	p.Start(context.Background())
	waitFor(t, "three polls", func() bool { return fetches.Load() >= 3 })
	p.Stop()

	if len(f.Records()) != 3 {
		t.Errorf("records = %d, want 3", len(f.Records()))
	}
}

func TestPollerSkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	var fetches atomic.Int64
	src := SourceFunc(func(ctx context.Context, q Query) (Result, error) {
		fetches.Add(1)
		<-release
		return Result{}, nil
	})
	f := New(src, Options{})
	p := NewPoller(f, time.Millisecond, time.Millisecond, nil)
	p.Start(context.Background())

	waitFor(t, "skipped ticks", func() bool { return p.Skipped() >= 3 })
	if n := fetches.Load(); n != 1 {
		t.Errorf("fetches = %d while first poll in flight, want 1", n)
	}
	close(release)
	p.Stop()
}

func TestPollerInterval(t *testing.T) {
	f := New(SourceFunc(func(ctx context.Context, q Query) (Result, error) {
		return Result{}, nil
	}), Options{})
	p := NewPoller(f, time.Second, time.Minute, nil)

	ist := time.FixedZone("IST", 5*3600+1800)
	p.now = func() time.Time { return time.Date(2024, 3, 1, 11, 0, 0, 0, ist) } // Friday session
	if got := p.interval(); got != time.Second {
		t.Errorf("open interval = %v, want 1s", got)
	}
	p.now = func() time.Time { return time.Date(2024, 3, 2, 11, 0, 0, 0, ist) } // Saturday
	if got := p.interval(); got != time.Minute {
		t.Errorf("closed interval = %v, want 1m", got)
	}
	if got := p.session.Load(); got != 2 {
		t.Errorf("session = %d, want 2 (closed)", got)
	}
}
