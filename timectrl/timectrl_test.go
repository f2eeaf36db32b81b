package timectrl

import (
	"context"
	"sync"
	"testing"
	"time"
)

var (
	windowStart = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowStop  = windowStart.Add(20 * time.Second)
)

func TestPlaybackClockSetWindowRewinds(t *testing.T) {
	c := NewPlaybackClock(DefaultMultiplier, LoopStop)
	c.SetWindow(windowStart, windowStop)

	if got := c.Now(); !got.Equal(windowStart) {
		t.Fatalf("Now() = %v, want %v", got, windowStart)
	}
	start, stop, ok := c.Window()
	if !ok || !start.Equal(windowStart) || !stop.Equal(windowStop) {
		t.Fatalf("Window() = (%v, %v, %v), want (%v, %v, true)", start, stop, ok, windowStart, windowStop)
	}
}

func TestPlaybackClockAdvanceAppliesMultiplier(t *testing.T) {
	c := NewPlaybackClock(10, LoopStop)
	c.SetWindow(windowStart, windowStop)

	got := c.Advance(500 * time.Millisecond)
	want := windowStart.Add(5 * time.Second)
	if !got.Equal(want) {
		t.Fatalf("Advance() = %v, want %v", got, want)
	}
}

func TestPlaybackClockLoopStopWraps(t *testing.T) {
	c := NewPlaybackClock(10, LoopStop)
	c.SetWindow(windowStart, windowStop)

	c.Advance(time.Second)
	if got := c.Now(); !got.Equal(windowStart.Add(10 * time.Second)) {
		t.Fatalf("after 1s Now() = %v", got)
	}
	c.Advance(1500 * time.Millisecond)
	if got := c.Now(); !got.Equal(windowStart) {
		t.Fatalf("after wrap Now() = %v, want %v", got, windowStart)
	}
}

func TestPlaybackClockClampedStopsAtEdge(t *testing.T) {
	c := NewPlaybackClock(10, Clamped)
	c.SetWindow(windowStart, windowStop)

	c.Advance(time.Minute)
	if got := c.Now(); !got.Equal(windowStop) {
		t.Fatalf("Now() = %v, want %v", got, windowStop)
	}

	c.SetTime(windowStart.Add(-time.Hour))
	if got := c.Now(); !got.Equal(windowStart) {
		t.Fatalf("SetTime before start: Now() = %v, want %v", got, windowStart)
	}
}

func TestPlaybackClockWithoutWindowIsIdle(t *testing.T) {
	c := NewPlaybackClock(10, LoopStop)
	if got := c.Advance(time.Second); !got.IsZero() {
		t.Fatalf("Advance() without window = %v, want zero", got)
	}
	if _, _, ok := c.Window(); ok {
		t.Fatalf("Window() reported a window before SetWindow")
	}
}

func TestPlaybackClockListeners(t *testing.T) {
	c := NewPlaybackClock(1, Unbounded)

	var mu sync.Mutex
	var seen []time.Time
	c.AddListener(func(now time.Time) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, now)
	})

	c.SetWindow(windowStart, windowStop)
	c.Advance(2 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("listener calls = %d, want 2", len(seen))
	}
	if !seen[1].Equal(windowStart.Add(2 * time.Second)) {
		t.Fatalf("second notification = %v", seen[1])
	}
}

func TestPlaybackClockStartStopsOnCancel(t *testing.T) {
	c := NewPlaybackClock(1, Unbounded)
	c.SetWindow(windowStart, windowStop)

	ctx, cancel := context.WithCancel(context.Background())
	done := c.Start(ctx, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("clock loop did not exit after cancel")
	}
	if !c.Now().After(windowStart) {
		t.Fatalf("Now() = %v, expected clock to have advanced", c.Now())
	}
}
