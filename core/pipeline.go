package core

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/route-playback/model"
)

// Trajectory is the complete output of one pipeline run.
type Trajectory struct {
	Settings Settings
	Samples  []AcceptedSample
	Rejected []RejectedSample
	Curve    *PositionCurve
	Window   Window
	Stats    Stats
}

// Stats summarises a pipeline run.
type Stats struct {
	RawCount      int     `json:"raw_count"`
	AcceptedCount int     `json:"accepted_count"`
	RejectedCount int     `json:"rejected_count"`
	PathLength    float64 `json:"path_length_m"`
	MaxSpeed      float64 `json:"max_speed_mps"`
	MeanSpeed     float64 `json:"mean_speed_mps"`
}

// BuildTrajectory runs the slicer, the sample filter, the interpolator and the
// window derivation over one feature. Any stage failure aborts the run and
// no partial trajectory is returned.
func BuildTrajectory(f model.Feature, s Settings, opts ...CurveOption) (*Trajectory, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	raw, err := SliceFeature(f, s)
	if err != nil {
		return nil, fmt.Errorf("slice feature: %w", err)
	}

	filtered, err := FilterSamples(raw, s)
	if err != nil {
		return nil, fmt.Errorf("filter samples: %w", err)
	}

	times := filtered.Times()
	curve, err := BuildCurve(times, filtered.Positions(), opts...)
	if err != nil {
		return nil, fmt.Errorf("build position curve: %w", err)
	}

	window, err := DeriveWindow(times)
	if err != nil {
		return nil, fmt.Errorf("derive window: %w", err)
	}

	return &Trajectory{
		Settings: s,
		Samples:  filtered.Samples,
		Rejected: filtered.Rejected,
		Curve:    curve,
		Window:   window,
		Stats:    computeStats(len(raw), filtered),
	}, nil
}

func computeStats(rawCount int, r *FilterResult) Stats {
	st := Stats{
		RawCount:      rawCount,
		AcceptedCount: len(r.Samples),
		RejectedCount: len(r.Rejected),
	}
	if len(r.Samples) < 2 {
		return st
	}

	dists := make([]float64, 0, len(r.Samples)-1)
	speeds := make([]float64, 0, len(r.Samples)-1)
	for _, s := range r.Samples[1:] {
		dists = append(dists, s.Distance)
		speeds = append(speeds, s.Speed)
	}
	st.PathLength = floats.Sum(dists)
	st.MaxSpeed = floats.Max(speeds)
	st.MeanSpeed = floats.Sum(speeds) / float64(len(speeds))
	return st
}
