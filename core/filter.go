package core

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/route-playback/model"
)

// AcceptedSample is a sample that passed the acceleration filter, together
// with the kinematics computed against the previously accepted sample.
type AcceptedSample struct {
	// Index is the sample's index in the original (unsliced) feature.
	Index      int
	Coordinate model.Coordinate
	Position   r3.Vec
	Time       time.Time

	Distance     float64 // metres from the previous accepted sample
	TimeDelta    float64 // seconds since the previous accepted sample
	Speed        float64 // m/s
	Acceleration float64 // m/s^2

	Description string
}

// RejectedSample records a sample dropped by the filter.
type RejectedSample struct {
	Index        int
	Time         time.Time
	Speed        float64
	Acceleration float64
}

// FilterResult is the output of one filter pass.
type FilterResult struct {
	Samples  []AcceptedSample
	Rejected []RejectedSample
}

// Positions returns the accepted positions in order.
func (r *FilterResult) Positions() []r3.Vec {
	out := make([]r3.Vec, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Position
	}
	return out
}

// Times returns the accepted sample times in order.
func (r *FilterResult) Times() []time.Time {
	out := make([]time.Time, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Time
	}
	return out
}

// Descriptions returns the accepted sample descriptions in order.
func (r *FilterResult) Descriptions() []string {
	out := make([]string, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Description
	}
	return out
}

// FilterSamples walks the samples in order and drops every sample whose
// acceleration relative to the last accepted sample reaches the settings'
// bound. The first sample is always accepted and seeds the reference.
//
// A rejected sample never becomes the reference, so the next candidate is
// still compared against the last accepted one. Any malformed or
// non-advancing sample aborts the whole pass.
func FilterSamples(samples []model.RawSample, settings Settings) (*FilterResult, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples to filter", ErrEmptyInput)
	}
	threshold := settings.EffectiveMaxVelocity()

	ref, err := parseSample(samples[0])
	if err != nil {
		return nil, err
	}
	ref.Description = describeFirst(ref)

	result := &FilterResult{
		Samples: make([]AcceptedSample, 0, len(samples)),
	}
	result.Samples = append(result.Samples, ref)

	for _, raw := range samples[1:] {
		cand, err := parseSample(raw)
		if err != nil {
			return nil, err
		}

		dt := cand.Time.Sub(ref.Time).Seconds()
		if dt <= 0 {
			return nil, fmt.Errorf("%w: sample %d at %s does not advance past sample %d at %s",
				ErrDegenerateSample, cand.Index, raw.Timestamp, ref.Index, ref.Time.Format(time.RFC3339Nano))
		}

		cand.Distance = Distance(ref.Position, cand.Position)
		cand.TimeDelta = dt
		cand.Speed = cand.Distance / dt
		cand.Acceleration = (cand.Speed - ref.Speed) / dt

		if !(math.Abs(cand.Acceleration) < threshold) {
			result.Rejected = append(result.Rejected, RejectedSample{
				Index:        cand.Index,
				Time:         cand.Time,
				Speed:        cand.Speed,
				Acceleration: cand.Acceleration,
			})
			continue
		}

		cand.Description = describe(cand)
		result.Samples = append(result.Samples, cand)
		ref = cand
	}

	return result, nil
}

func parseSample(raw model.RawSample) (AcceptedSample, error) {
	coord, err := ParseCoordinate(raw.Coordinate)
	if err != nil {
		return AcceptedSample{}, fmt.Errorf("sample %d: %w", raw.Index, err)
	}
	t, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return AcceptedSample{}, fmt.Errorf("sample %d: %w", raw.Index, err)
	}
	return AcceptedSample{
		Index:      raw.Index,
		Coordinate: coord,
		Position:   CartesianFromGeodetic(coord),
		Time:       t,
	}, nil
}
