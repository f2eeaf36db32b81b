package api

import (
	"errors"
	"net/http"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/report"
	"github.com/signalsfoundry/route-playback/internal/runstore"
	"github.com/signalsfoundry/route-playback/internal/session"
	"github.com/signalsfoundry/route-playback/internal/transport"
	"github.com/signalsfoundry/route-playback/kb"
)

var (
	// ErrBadRequest marks malformed client input that never reached the pipeline.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound is a package-level sentinel used when a resource cannot be located.
	ErrNotFound = errors.New("not found")
)

// ToHTTPStatus maps pipeline, scene and transport errors onto HTTP status codes.
func ToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest

	case errors.Is(err, ErrNotFound),
		errors.Is(err, session.ErrNoTrajectory),
		errors.Is(err, runstore.ErrRunNotFound),
		errors.Is(err, report.ErrNoSamples),
		errors.Is(err, kb.ErrEntityNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrParse),
		errors.Is(err, core.ErrDegenerateSample),
		errors.Is(err, core.ErrRange),
		errors.Is(err, core.ErrEmptyInput),
		errors.Is(err, core.ErrOutsideWindow):
		return http.StatusUnprocessableEntity

	case errors.Is(err, transport.ErrTransport):
		return http.StatusBadGateway

	case errors.Is(err, session.ErrNoConverter):
		return http.StatusServiceUnavailable

	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}
