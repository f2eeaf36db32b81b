package core

import (
	"fmt"
	"slices"

	"github.com/signalsfoundry/route-playback/model"
)

// SliceSamples returns the samples in [start, end) of the parallel coordinate
// and timestamp arrays. An end of 0 means the end of the arrays. The returned
// samples are copies; the caller's arrays are never modified.
func SliceSamples(coords [][]float64, times []string, start, end int) ([]model.RawSample, error) {
	if len(coords) != len(times) {
		return nil, fmt.Errorf("%w: %d coordinates but %d timestamps", ErrParse, len(coords), len(times))
	}
	n := len(coords)
	if n == 0 {
		return nil, fmt.Errorf("%w: feature has no samples", ErrEmptyInput)
	}

	effectiveEnd := end
	if end == 0 {
		effectiveEnd = n
	}
	if start < 0 || start >= n {
		return nil, fmt.Errorf("%w: start index %d not in [0, %d)", ErrRange, start, n)
	}
	if effectiveEnd < start || effectiveEnd > n {
		return nil, fmt.Errorf("%w: end index %d not in [%d, %d]", ErrRange, end, start, n)
	}
	if effectiveEnd == start {
		return nil, fmt.Errorf("%w: slice [%d, %d) is empty", ErrEmptyInput, start, effectiveEnd)
	}

	out := make([]model.RawSample, 0, effectiveEnd-start)
	for i := start; i < effectiveEnd; i++ {
		out = append(out, model.RawSample{
			Index:      i,
			Coordinate: slices.Clone(coords[i]),
			Timestamp:  times[i],
		})
	}
	return out, nil
}

// SliceFeature slices a feature's samples according to the settings' indices.
func SliceFeature(f model.Feature, s Settings) ([]model.RawSample, error) {
	return SliceSamples(f.Geometry.Coordinates, f.Properties.Times, s.StartIndex, s.EndIndex)
}
