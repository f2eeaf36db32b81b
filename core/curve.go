package core

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/spatial/r3"
)

// PositionCurve is a continuous, time-keyed position function built from
// accepted samples. Between samples it interpolates linearly per ECEF axis;
// at a sample time it returns that sample's position exactly.
type PositionCurve struct {
	times     []time.Time
	positions []r3.Vec

	// offsets are seconds since times[0]; they are the interpolation abscissae.
	offsets []float64
	x, y, z interp.PiecewiseLinear

	strict bool
}

// CurveOption customises PositionCurve construction.
type CurveOption func(*PositionCurve)

// WithStrictBounds makes At fail with ErrOutsideWindow for times outside the
// sampled span instead of clamping to the nearest endpoint.
func WithStrictBounds() CurveOption {
	return func(c *PositionCurve) {
		c.strict = true
	}
}

// BuildCurve builds a PositionCurve from strictly increasing sample times and
// their positions.
func BuildCurve(times []time.Time, positions []r3.Vec, opts ...CurveOption) (*PositionCurve, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no samples for position curve", ErrEmptyInput)
	}
	if len(times) != len(positions) {
		return nil, fmt.Errorf("%w: %d times but %d positions", ErrRange, len(times), len(positions))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("%w: sample time %d (%s) does not follow %s",
				ErrDegenerateSample, i, times[i].Format(time.RFC3339Nano), times[i-1].Format(time.RFC3339Nano))
		}
	}

	c := &PositionCurve{
		times:     slices.Clone(times),
		positions: slices.Clone(positions),
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(times) < 2 {
		return c, nil
	}

	n := len(times)
	c.offsets = make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	for i, t := range times {
		c.offsets[i] = t.Sub(times[0]).Seconds()
		xs[i], ys[i], zs[i] = positions[i].X, positions[i].Y, positions[i].Z
	}
	if err := c.x.Fit(c.offsets, xs); err != nil {
		return nil, fmt.Errorf("fit x: %w", err)
	}
	if err := c.y.Fit(c.offsets, ys); err != nil {
		return nil, fmt.Errorf("fit y: %w", err)
	}
	if err := c.z.Fit(c.offsets, zs); err != nil {
		return nil, fmt.Errorf("fit z: %w", err)
	}
	return c, nil
}

// Start returns the first sample time.
func (c *PositionCurve) Start() time.Time { return c.times[0] }

// End returns the last sample time.
func (c *PositionCurve) End() time.Time { return c.times[len(c.times)-1] }

// Len returns the number of samples backing the curve.
func (c *PositionCurve) Len() int { return len(c.times) }

// Times returns a copy of the sample times.
func (c *PositionCurve) Times() []time.Time { return slices.Clone(c.times) }

// At returns the position at t.
func (c *PositionCurve) At(t time.Time) (r3.Vec, error) {
	if i, ok := slices.BinarySearchFunc(c.times, t, compareTime); ok {
		return c.positions[i], nil
	}

	switch {
	case t.Before(c.Start()):
		if c.strict {
			return r3.Vec{}, fmt.Errorf("%w: %s before %s", ErrOutsideWindow, t.Format(time.RFC3339Nano), c.Start().Format(time.RFC3339Nano))
		}
		return c.positions[0], nil
	case t.After(c.End()):
		if c.strict {
			return r3.Vec{}, fmt.Errorf("%w: %s after %s", ErrOutsideWindow, t.Format(time.RFC3339Nano), c.End().Format(time.RFC3339Nano))
		}
		return c.positions[len(c.positions)-1], nil
	}

	off := t.Sub(c.times[0]).Seconds()
	return r3.Vec{
		X: c.x.Predict(off),
		Y: c.y.Predict(off),
		Z: c.z.Predict(off),
	}, nil
}

// TimedPosition is a position on the curve at a given time.
type TimedPosition struct {
	Time     time.Time
	Position r3.Vec
}

// Sample returns positions every step across the curve's span, always
// including the final sample time.
func (c *PositionCurve) Sample(step time.Duration) ([]TimedPosition, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: sample step %s must be positive", ErrRange, step)
	}
	var out []TimedPosition
	for t := c.Start(); t.Before(c.End()); t = t.Add(step) {
		p, err := c.At(t)
		if err != nil {
			return nil, err
		}
		out = append(out, TimedPosition{Time: t, Position: p})
	}
	out = append(out, TimedPosition{Time: c.End(), Position: c.positions[len(c.positions)-1]})
	return out, nil
}

// OrientationFunc returns the unit direction of travel at t, or false when
// the direction is undefined there.
type OrientationFunc func(t time.Time) (r3.Vec, bool)

// orientationStep is the finite-difference interval for VelocityOrientation.
const orientationStep = time.Second

// VelocityOrientation derives the direction of travel from finite
// differences of the curve. At the end of the span it looks backwards.
func VelocityOrientation(c *PositionCurve) OrientationFunc {
	return func(t time.Time) (r3.Vec, bool) {
		if c == nil || c.Len() < 2 {
			return r3.Vec{}, false
		}
		a, b := t, t.Add(orientationStep)
		if !b.Before(c.End()) {
			a, b = t.Add(-orientationStep), t
		}
		pa, err := c.At(a)
		if err != nil {
			return r3.Vec{}, false
		}
		pb, err := c.At(b)
		if err != nil {
			return r3.Vec{}, false
		}
		d := r3.Sub(pb, pa)
		if r3.Norm(d) == 0 {
			return r3.Vec{}, false
		}
		return r3.Unit(d), true
	}
}

func compareTime(a, b time.Time) int { return a.Compare(b) }
