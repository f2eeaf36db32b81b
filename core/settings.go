package core

import (
	"fmt"
	"math"
	"time"
)

// DefaultMaxVelocity is the acceleration bound used when no configuration
// overrides it.
const DefaultMaxVelocity = 50

// Settings controls one pipeline run. It is an immutable value; callers pass
// a fresh copy into every run.
type Settings struct {
	// MaxVelocity is the acceleration magnitude bound (m/s^2) for accepting a
	// sample. Non-positive values disable filtering.
	MaxVelocity float64 `json:"max_velocity" mapstructure:"MAX_VELOCITY"`
	// StartIndex is the first feature index to process.
	StartIndex int `json:"start_index" mapstructure:"START_INDEX"`
	// EndIndex is the exclusive end index; 0 means the end of the feature.
	EndIndex int `json:"end_index" mapstructure:"END_INDEX"`
	// LeadTime and TrailTime are the seconds of path shown ahead of and behind
	// the playback time. Non-positive values leave that side unbounded.
	LeadTime  float64 `json:"lead_time" mapstructure:"LEAD_TIME"`
	TrailTime float64 `json:"trail_time" mapstructure:"TRAIL_TIME"`
}

// MaxPathSeconds is the largest lead or trail time a time.Duration can hold.
const MaxPathSeconds = float64(math.MaxInt64 / int64(time.Second))

// DefaultSettings returns the settings the service starts with.
func DefaultSettings() Settings {
	return Settings{MaxVelocity: DefaultMaxVelocity}
}

// EffectiveMaxVelocity returns the acceptance threshold, +Inf when filtering
// is disabled.
func (s Settings) EffectiveMaxVelocity() float64 {
	if s.MaxVelocity > 0 {
		return s.MaxVelocity
	}
	return math.Inf(1)
}

// Lead returns the path lead time and whether it is set.
func (s Settings) Lead() (time.Duration, bool) { return secondsOption(s.LeadTime) }

// Trail returns the path trail time and whether it is set.
func (s Settings) Trail() (time.Duration, bool) { return secondsOption(s.TrailTime) }

// Validate checks the slice indices and the numeric bounds.
func (s Settings) Validate() error {
	if s.StartIndex < 0 {
		return fmt.Errorf("%w: start index %d is negative", ErrRange, s.StartIndex)
	}
	if s.EndIndex < 0 {
		return fmt.Errorf("%w: end index %d is negative", ErrRange, s.EndIndex)
	}
	if s.EndIndex != 0 && s.StartIndex > s.EndIndex {
		return fmt.Errorf("%w: start index %d after end index %d", ErrRange, s.StartIndex, s.EndIndex)
	}
	if math.IsNaN(s.MaxVelocity) || math.IsNaN(s.LeadTime) || math.IsNaN(s.TrailTime) {
		return fmt.Errorf("%w: settings contain NaN", ErrRange)
	}
	for _, f := range []struct {
		name string
		sec  float64
	}{{"lead time", s.LeadTime}, {"trail time", s.TrailTime}} {
		if math.IsInf(f.sec, 0) || f.sec > MaxPathSeconds {
			return fmt.Errorf("%w: %s %g s must be finite and at most %g s", ErrRange, f.name, f.sec, MaxPathSeconds)
		}
	}
	return nil
}

func secondsOption(sec float64) (time.Duration, bool) {
	if !(sec > 0) || sec > MaxPathSeconds {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}
