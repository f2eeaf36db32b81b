// Package api exposes the playback session over HTTP and the gRPC health
// service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/logging"
	"github.com/signalsfoundry/route-playback/internal/report"
	"github.com/signalsfoundry/route-playback/internal/runstore"
	"github.com/signalsfoundry/route-playback/internal/session"
	"github.com/signalsfoundry/route-playback/kb"
	"github.com/signalsfoundry/route-playback/model"
)

// DefaultMaxUploadBytes bounds request bodies when no limit is configured.
const DefaultMaxUploadBytes = 32 << 20

// Session is the playback session driven by the API.
type Session interface {
	Upload(ctx context.Context, filename string, content []byte) (*session.Run, error)
	Load(ctx context.Context, source string, feature model.Feature) (*session.Run, error)
	Release(ctx context.Context)
	Current() (*session.Run, bool)
	Settings() core.Settings
	SetSettings(core.Settings) error
	ShowPoints(visible bool) error
	ShowPath(visible bool) error
	Focus() error
	Track() error
	Position(t time.Time) (r3.Vec, error)
	PathRange(now time.Time) (core.PathRange, error)
}

// SceneReader exposes the scene state.
type SceneReader interface {
	Snapshot() (*kb.Snapshot, error)
}

// Clock is the playback clock state.
type Clock interface {
	Now() time.Time
	Window() (start, stop time.Time, ok bool)
	Multiplier() float64
}

// RunStore reads recorded runs.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]runstore.Run, error)
	GetRun(ctx context.Context, id string) (runstore.Run, error)
}

// HTTPMetrics wraps route handlers with request metrics.
type HTTPMetrics interface {
	HTTPMiddleware(route string, next http.Handler) http.Handler
}

// Server serves the HTTP API.
type Server struct {
	session   Session
	scene     SceneReader
	clock     Clock
	runs      RunStore
	metrics   HTTPMetrics
	log       logging.Logger
	maxUpload int64
}

// Option configures a Server.
type Option func(*Server)

// WithRunStore enables the run history endpoints.
func WithRunStore(r RunStore) Option { return func(s *Server) { s.runs = r } }

// WithHTTPMetrics records per-route request metrics.
func WithHTTPMetrics(m HTTPMetrics) Option { return func(s *Server) { s.metrics = m } }

// WithLogger sets the base logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxUploadBytes bounds request body sizes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewServer returns an API server over sess, scene and clock.
func NewServer(sess Session, scene SceneReader, clock Clock, opts ...Option) *Server {
	s := &Server{
		session:   sess,
		scene:     scene,
		clock:     clock,
		log:       logging.Noop(),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the instrumented HTTP handler for every API route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		var handler http.Handler = h
		if s.metrics != nil {
			handler = s.metrics.HTTPMiddleware(pattern, handler)
		}
		mux.Handle(pattern, otelhttp.WithRouteTag(pattern, handler))
	}

	route("POST /api/upload", s.handleUpload)
	route("POST /api/feature", s.handleFeature)
	route("GET /api/trajectory", s.handleTrajectory)
	route("DELETE /api/trajectory", s.handleRelease)
	route("GET /api/trajectory/position", s.handlePosition)
	route("GET /api/trajectory/path", s.handlePath)
	route("GET /api/settings", s.handleGetSettings)
	route("PUT /api/settings", s.handlePutSettings)
	route("POST /api/points/{action}", s.handleVisibility(s.session.ShowPoints))
	route("POST /api/path/{action}", s.handleVisibility(s.session.ShowPath))
	route("POST /api/focus", s.handleAction(s.session.Focus))
	route("POST /api/track", s.handleAction(s.session.Track))
	route("GET /api/clock", s.handleClock)
	route("GET /api/scene", s.handleScene)
	route("GET /api/runs", s.handleListRuns)
	route("GET /api/runs/{id}", s.handleGetRun)
	route("GET /api/runs/{id}/chart", s.handleRunChart)
	route("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	return otelhttp.NewHandler(RequestID(s.log, mux), "playback-api")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: multipart field \"file\": %v", ErrBadRequest, err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	run, err := s.session.Upload(r.Context(), hdr.Filename, content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRunView(run))
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	var feature model.Feature
	if err := json.NewDecoder(r.Body).Decode(&feature); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode feature: %v", ErrBadRequest, err))
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = feature.Properties.Name
	}

	run, err := s.session.Load(r.Context(), source, feature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRunView(run))
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	run, ok := s.session.Current()
	if !ok {
		s.writeError(w, r, session.ErrNoTrajectory)
		return
	}
	writeJSON(w, http.StatusOK, newRunView(run))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.session.Release(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	t, err := s.queryTime(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pos, err := s.session.Position(t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView{Time: t, X: pos.X, Y: pos.Y, Z: pos.Z})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	t, err := s.queryTime(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pr, err := s.session.PathRange(t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// queryTime reads the "t" query parameter, defaulting to the playback clock.
func (s *Server) queryTime(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("t")
	if raw == "" {
		if s.clock == nil {
			return time.Time{}, fmt.Errorf("%w: missing t", ErrBadRequest)
		}
		return s.clock.Now(), nil
	}
	t, err := core.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: t: %v", ErrBadRequest, err)
	}
	return t, nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.session.Settings()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode settings: %v", ErrBadRequest, err))
		return
	}
	if err := s.session.SetSettings(settings); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleVisibility(set func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var visible bool
		switch action := r.PathValue("action"); action {
		case "show":
			visible = true
		case "hide":
		default:
			s.writeError(w, r, fmt.Errorf("%w: unknown action %q", ErrNotFound, action))
			return
		}
		if err := set(visible); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAction(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	if s.clock == nil {
		s.writeError(w, r, fmt.Errorf("%w: no playback clock", ErrNotFound))
		return
	}
	view := clockView{Now: s.clock.Now(), Multiplier: s.clock.Multiplier()}
	if start, stop, ok := s.clock.Window(); ok {
		view.Window = &core.Window{Start: start, Stop: stop}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	snap, err := s.scene.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, r, fmt.Errorf("%w: run history disabled", ErrNotFound))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit %q", ErrBadRequest, raw))
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []runstore.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderRun(w, run); err != nil {
		s.writeError(w, r, err)
	}
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (runstore.Run, bool) {
	if s.runs == nil {
		s.writeError(w, r, fmt.Errorf("%w: run history disabled", ErrNotFound))
		return runstore.Run{}, false
	}
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return runstore.Run{}, false
	}
	return run, true
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := ToHTTPStatus(err)
	log := logging.LoggerFromContext(r.Context())
	if log == nil {
		log = s.log
	}
	if code >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", logging.Int("status", code), logging.Err(err))
	} else {
		log.Warn(r.Context(), "request rejected", logging.Int("status", code), logging.Err(err))
	}
	writeJSON(w, code, errorBody{Error: err.Error(), RequestID: logging.RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
