package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is an interface for reading playback time. Consumers that only need
// the current time depend on this rather than the concrete clock.
type Clock interface {
	// Now returns the current playback time.
	Now() time.Time
}

// Range describes what the clock does when playback reaches the window edge.
type Range int

const (
	// Unbounded keeps advancing past the stop time.
	Unbounded Range = iota
	// Clamped stops at the window edge.
	Clamped
	// LoopStop wraps back to the start when advancing past the stop time.
	LoopStop
)

// DefaultMultiplier is the playback speed relative to wall-clock time.
const DefaultMultiplier = 10

// PlaybackClock drives trajectory playback time within a window and notifies
// registered listeners whenever the time changes.
type PlaybackClock struct {
	mu sync.RWMutex

	start   time.Time
	stop    time.Time
	current time.Time

	// multiplier scales wall-clock time into playback time; it may be
	// negative for reverse playback.
	multiplier float64
	rng        Range

	listeners []func(time.Time)
}

// NewPlaybackClock constructs a clock with no window.
func NewPlaybackClock(multiplier float64, rng Range) *PlaybackClock {
	return &PlaybackClock{
		multiplier: multiplier,
		rng:        rng,
	}
}

// SetWindow sets the playback window and rewinds the current time to start.
func (c *PlaybackClock) SetWindow(start, stop time.Time) {
	c.mu.Lock()
	c.start, c.stop, c.current = start, stop, start
	listeners := append([]func(time.Time){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(start)
	}
}

// ClearWindow removes the playback window.
func (c *PlaybackClock) ClearWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start, c.stop, c.current = time.Time{}, time.Time{}, time.Time{}
}

// Window returns the playback window and whether one is set.
func (c *PlaybackClock) Window() (start, stop time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start, c.stop, !c.start.IsZero()
}

// Now returns the current playback time. Implements Clock.
func (c *PlaybackClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Multiplier returns the playback speed multiplier.
func (c *PlaybackClock) Multiplier() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.multiplier
}

// SetMultiplier changes the playback speed multiplier.
func (c *PlaybackClock) SetMultiplier(m float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multiplier = m
}

// SetTime moves the current playback time, applying the clock range.
func (c *PlaybackClock) SetTime(t time.Time) {
	c.mu.Lock()
	if c.start.IsZero() {
		c.mu.Unlock()
		return
	}
	c.current = c.applyRange(t)
	now := c.current
	listeners := append([]func(time.Time){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
}

// Advance moves playback forward by wall scaled by the multiplier and returns
// the new playback time. It is a no-op while no window is set.
func (c *PlaybackClock) Advance(wall time.Duration) time.Time {
	c.mu.Lock()
	if c.start.IsZero() {
		c.mu.Unlock()
		return time.Time{}
	}
	step := time.Duration(float64(wall) * c.multiplier)
	c.current = c.applyRange(c.current.Add(step))
	now := c.current
	listeners := append([]func(time.Time){}, c.listeners...)
	c.mu.Unlock()

	// Notify listeners outside the lock so they may read the clock.
	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// applyRange must be called with c.mu held.
func (c *PlaybackClock) applyRange(t time.Time) time.Time {
	switch c.rng {
	case Clamped:
		if t.Before(c.start) {
			return c.start
		}
		if t.After(c.stop) {
			return c.stop
		}
	case LoopStop:
		if t.After(c.stop) {
			if c.multiplier >= 0 {
				return c.start
			}
			return c.stop
		}
		if t.Before(c.start) {
			if c.multiplier < 0 {
				return c.stop
			}
			return c.start
		}
	}
	return t
}

// AddListener registers a callback invoked whenever playback time changes.
func (c *PlaybackClock) AddListener(fn func(time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start advances the clock by tick every tick of wall-clock time until ctx is
// cancelled. It returns a channel that is closed when the loop exits.
func (c *PlaybackClock) Start(ctx context.Context, tick time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Advance(tick)
			}
		}
	}()
	return done
}
