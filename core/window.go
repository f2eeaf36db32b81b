package core

import (
	"fmt"
	"time"
)

// Window is a closed time interval [Start, Stop].
type Window struct {
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// DeriveWindow returns the interval spanned by the first and last sample time.
func DeriveWindow(times []time.Time) (Window, error) {
	if len(times) == 0 {
		return Window{}, fmt.Errorf("%w: no sample times for window", ErrEmptyInput)
	}
	return Window{Start: times[0], Stop: times[len(times)-1]}, nil
}

// Duration returns Stop - Start.
func (w Window) Duration() time.Duration { return w.Stop.Sub(w.Start) }

// Contains reports whether t lies within the closed interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.Stop)
}

// Availability is a set of intervals during which an entity is active.
type Availability []Window

// Availability returns the single-interval collection [Start, Stop].
func (w Window) Availability() Availability { return Availability{w} }

// Contains reports whether any interval contains t.
func (a Availability) Contains(t time.Time) bool {
	for _, w := range a {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// PathRange is the portion of the trajectory path drawn at a playback time.
// A zero bound means the path is drawn to that end of the window.
type PathRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// VisiblePathRange returns the path range shown at now: from now-trail to
// now+lead, clipped to the window. Unset lead or trail extends that side to
// the window edge.
func VisiblePathRange(w Window, now time.Time, s Settings) PathRange {
	r := PathRange{From: w.Start, To: w.Stop}
	if trail, ok := s.Trail(); ok {
		if from := now.Add(-trail); from.After(r.From) {
			r.From = from
		}
	}
	if lead, ok := s.Lead(); ok {
		if to := now.Add(lead); to.Before(r.To) {
			r.To = to
		}
	}
	if r.From.After(r.To) {
		r.From = r.To
	}
	return r
}
