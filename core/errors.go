package core

import "errors"

var (
	// ErrParse indicates a malformed coordinate or timestamp, or parallel
	// coordinate/timestamp arrays of different lengths.
	ErrParse = errors.New("malformed sample")
	// ErrDegenerateSample indicates a candidate sample whose timestamp does not
	// advance past the reference sample, so speed is undefined.
	ErrDegenerateSample = errors.New("degenerate sample")
	// ErrRange indicates invalid slice bounds or settings indices.
	ErrRange = errors.New("index out of range")
	// ErrEmptyInput indicates there are no samples to process.
	ErrEmptyInput = errors.New("empty input")
	// ErrOutsideWindow is returned by strict position curves for queries
	// outside the sampled span.
	ErrOutsideWindow = errors.New("time outside trajectory window")
)
