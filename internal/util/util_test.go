package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"annfeed/internal/domain"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestBackoff(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 4 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, want %v", got, time.Second)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60)
	if !rl.Allow() {
		t.Fatal("first token should be available")
	}
	if rl.Allow() {
		t.Error("second token should not be available immediately at 1/s")
	}

	unlimited := NewRateLimiter(0)
	for i := 0; i < 5; i++ {
		if !unlimited.Allow() {
			t.Fatal("zero rate should not limit")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", "text", &buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %q", out)
	}

	buf.Reset()
	NewLogger("debug", "json", &buf).Debug("dbg")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json format should emit JSON, got %q", buf.String())
	}

	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}

func TestRepeaterSkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	r := NewRepeater(func() time.Duration { return time.Hour }, func(ctx context.Context) {
		runs.Add(1)
		<-release
	})

	ctx := context.Background()
	if !r.Tick(ctx) {
		t.Fatal("first tick should start a run")
	}
	if r.Tick(ctx) {
		t.Error("tick while in flight should be skipped")
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for !r.Tick(ctx) {
		if time.Now().After(deadline) {
			t.Fatal("run never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Errorf("runs = %d, want at least 2", runs.Load())
	}
}

func TestRepeaterStop(t *testing.T) {
	var runs atomic.Int32
	r := NewRepeater(func() time.Duration { return 5 * time.Millisecond }, func(ctx context.Context) {
		runs.Add(1)
	})
	r.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	r.Stop()
	n := runs.Load()
	if n == 0 {
		t.Fatal("repeater never ran")
	}
	time.Sleep(30 * time.Millisecond)
	if runs.Load() > n+1 {
		t.Errorf("repeater kept running after Stop: %d -> %d", n, runs.Load())
	}
	r.Stop() // second Stop is a no-op
}

func TestMarketCalendar(t *testing.T) {
	cal := NewMarketCalendar()
	// Tuesday 2024-03-05.
	tests := []struct {
		t    time.Time
		open bool
	}{
		{time.Date(2024, 3, 5, 9, 14, 0, 0, domain.IST), false},
		{time.Date(2024, 3, 5, 9, 15, 0, 0, domain.IST), true},
		{time.Date(2024, 3, 5, 15, 29, 0, 0, domain.IST), true},
		{time.Date(2024, 3, 5, 15, 30, 0, 0, domain.IST), false},
		{time.Date(2024, 3, 9, 11, 0, 0, 0, domain.IST), false}, // Saturday
		{time.Date(2024, 3, 5, 5, 0, 0, 0, time.UTC), true},     // 10:30 IST
	}
	for _, tt := range tests {
		if got := cal.IsMarketOpen(tt.t); got != tt.open {
			t.Errorf("IsMarketOpen(%v) = %v, want %v", tt.t, got, tt.open)
		}
	}

	next := cal.NextOpen(time.Date(2024, 3, 8, 16, 0, 0, 0, domain.IST)) // Friday evening
	want := time.Date(2024, 3, 11, 9, 15, 0, 0, domain.IST)
	if !next.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", next, want)
	}

	if got := cal.PollInterval(time.Date(2024, 3, 9, 11, 0, 0, 0, domain.IST), time.Second, time.Minute); got != time.Minute {
		t.Errorf("PollInterval on weekend = %v, want 1m", got)
	}
}
