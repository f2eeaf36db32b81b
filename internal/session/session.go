// Package session owns the currently displayed trajectory and runs the
// pipeline for each upload, replacing the previous run's scene entities.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/logging"
	"github.com/signalsfoundry/route-playback/internal/observability"
	"github.com/signalsfoundry/route-playback/internal/runstore"
	"github.com/signalsfoundry/route-playback/kb"
	"github.com/signalsfoundry/route-playback/model"
)

var (
	// ErrNoTrajectory is returned by operations that need a displayed run.
	ErrNoTrajectory = errors.New("no trajectory loaded")
	// ErrNoConverter is returned by Upload when no converter is configured.
	ErrNoConverter = errors.New("no converter configured")
)

// Scene is the part of the scene the session drives.
type Scene interface {
	AddRenderablePoint(pos r3.Vec, description string) (kb.Handle, error)
	RemoveRenderablePoint(h kb.Handle) error
	SetPointsVisible(handles []kb.Handle, visible bool) error
	AddTrajectory(spec kb.TrajectorySpec) (kb.Handle, error)
	RemoveTrajectory(h kb.Handle) error
	SetTrajectoryPathVisible(h kb.Handle, visible bool) error
	SetClockWindow(start, stop time.Time)
	FocusOn(h kb.Handle) error
	Track(h kb.Handle) error
}

// Converter turns an uploaded route file into GeoJSON.
type Converter interface {
	Convert(ctx context.Context, filename string, content []byte) (model.ConversionResult, error)
}

// RunRecorder persists the outcome of each run.
type RunRecorder interface {
	RecordRun(ctx context.Context, r runstore.Run) error
}

// MetricsRecorder observes pipeline runs.
type MetricsRecorder interface {
	ObserveRun(d time.Duration, accepted, rejected int, err error)
}

// Run is the trajectory currently installed in the scene.
type Run struct {
	ID         string
	Source     string
	FileSize   int64
	Trajectory *core.Trajectory
	Points     []kb.Handle
	Entity     kb.Handle
}

// Session serialises pipeline runs against one scene. At most one run's
// entities are installed at a time.
type Session struct {
	mu sync.Mutex

	scene     Scene
	converter Converter
	runs      RunRecorder
	metrics   MetricsRecorder
	log       logging.Logger

	model     kb.ModelRef
	curveOpts []core.CurveOption
	settings  core.Settings

	current *Run
}

// Option configures a Session.
type Option func(*Session)

// WithConverter sets the upload converter.
func WithConverter(c Converter) Option { return func(s *Session) { s.converter = c } }

// WithRunRecorder persists every run outcome.
func WithRunRecorder(r RunRecorder) Option { return func(s *Session) { s.runs = r } }

// WithMetrics wires run metrics.
func WithMetrics(m MetricsRecorder) Option { return func(s *Session) { s.metrics = m } }

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithModel sets the model drawn at the trajectory position.
func WithModel(m kb.ModelRef) Option { return func(s *Session) { s.model = m } }

// WithSettings sets the initial pipeline settings.
func WithSettings(settings core.Settings) Option { return func(s *Session) { s.settings = settings } }

// WithCurveOptions passes options to every position curve the session builds.
func WithCurveOptions(opts ...core.CurveOption) Option {
	return func(s *Session) { s.curveOpts = append(s.curveOpts, opts...) }
}

// New returns a session driving scene.
func New(scene Scene, opts ...Option) *Session {
	s := &Session{
		scene:    scene,
		log:      logging.Noop(),
		model:    kb.DefaultModel,
		settings: core.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the settings applied to the next run.
func (s *Session) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the settings applied to subsequent runs. The installed
// run is not rebuilt.
func (s *Session) SetSettings(settings core.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// Upload converts content and plays back the first feature of the result.
// Any failure releases the previously displayed run.
func (s *Session) Upload(ctx context.Context, filename string, content []byte) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	settings := s.settings
	if s.converter == nil {
		return nil, s.failLocked(ctx, filename, settings, start, nil, ErrNoConverter)
	}

	res, err := s.converter.Convert(ctx, filename, content)
	if err != nil {
		return nil, s.failLocked(ctx, filename, settings, start, nil, fmt.Errorf("convert %s: %w", filename, err))
	}
	feature, ok := res.GeoJSON.First()
	if !ok {
		return nil, s.failLocked(ctx, filename, settings, start, nil,
			fmt.Errorf("convert %s: %w: no features in converted file", filename, core.ErrEmptyInput))
	}
	return s.runLocked(ctx, filename, res.FileSize, feature, settings, start)
}

// Load plays back feature directly, bypassing the converter.
func (s *Session) Load(ctx context.Context, source string, feature model.Feature) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(ctx, source, 0, feature, s.settings, time.Now())
}

func (s *Session) runLocked(ctx context.Context, source string, fileSize int64, feature model.Feature, settings core.Settings, start time.Time) (_ *Run, err error) {
	ctx, span := observability.StartSpan(ctx, "session.Run",
		attribute.String("source", source),
		attribute.Int("feature.samples", feature.Len()),
	)
	defer func() { observability.EndSpan(span, err) }()

	s.releaseLocked(ctx)

	tr, err := core.BuildTrajectory(feature, settings, s.curveOpts...)
	if err != nil {
		return nil, s.failLocked(ctx, source, settings, start, nil, err)
	}

	run := &Run{Source: source, FileSize: fileSize, Trajectory: tr}
	if err := s.install(ctx, run, settings); err != nil {
		s.releaseRun(ctx, run)
		return nil, s.failLocked(ctx, source, settings, start, tr, err)
	}

	record := runstore.NewRun(source, settings, tr, nil)
	run.ID = record.ID
	s.current = run
	s.record(ctx, record)
	s.observe(start, tr, nil)

	s.log.Info(ctx, "trajectory installed",
		logging.String("run_id", run.ID),
		logging.String("source", source),
		logging.Int("accepted", tr.Stats.AcceptedCount),
		logging.Int("rejected", tr.Stats.RejectedCount),
		logging.Time("window_start", tr.Window.Start),
		logging.Time("window_stop", tr.Window.Stop),
	)
	return run.clone(), nil
}

func (s *Session) install(ctx context.Context, run *Run, settings core.Settings) (err error) {
	_, span := observability.StartSpan(ctx, "session.Install",
		attribute.Int("points", len(run.Trajectory.Samples)),
	)
	defer func() { observability.EndSpan(span, err) }()

	tr := run.Trajectory
	run.Points = make([]kb.Handle, 0, len(tr.Samples))
	for _, sample := range tr.Samples {
		h, err := s.scene.AddRenderablePoint(sample.Position, sample.Description)
		if err != nil {
			return fmt.Errorf("add point for sample %d: %w", sample.Index, err)
		}
		run.Points = append(run.Points, h)
	}

	h, err := s.scene.AddTrajectory(kb.TrajectorySpec{
		Curve:       tr.Curve,
		Window:      tr.Window,
		Orientation: core.VelocityOrientation(tr.Curve),
		Model:       s.model,
		Path:        pathStyle(settings),
	})
	if err != nil {
		return fmt.Errorf("add trajectory: %w", err)
	}
	run.Entity = h

	if err := s.scene.FocusOn(h); err != nil {
		return fmt.Errorf("focus trajectory: %w", err)
	}
	s.scene.SetClockWindow(tr.Window.Start, tr.Window.Stop)
	return nil
}

func pathStyle(settings core.Settings) kb.PathStyle {
	var p kb.PathStyle
	if lead, ok := settings.Lead(); ok {
		p.LeadTime = &lead
	}
	if trail, ok := settings.Trail(); ok {
		p.TrailTime = &trail
	}
	return p
}

func (s *Session) failLocked(ctx context.Context, source string, settings core.Settings, start time.Time, tr *core.Trajectory, err error) error {
	s.releaseLocked(ctx)
	s.record(ctx, runstore.NewRun(source, settings, nil, err))
	s.observe(start, tr, err)
	s.log.Error(ctx, "pipeline run failed",
		logging.String("source", source),
		logging.Err(err),
	)
	return err
}

func (s *Session) record(ctx context.Context, r runstore.Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.RecordRun(ctx, r); err != nil {
		s.log.Warn(ctx, "failed to record run", logging.String("run_id", r.ID), logging.Err(err))
	}
}

func (s *Session) observe(start time.Time, tr *core.Trajectory, err error) {
	if s.metrics == nil {
		return
	}
	accepted, rejected := 0, 0
	if tr != nil {
		accepted, rejected = tr.Stats.AcceptedCount, tr.Stats.RejectedCount
	}
	s.metrics.ObserveRun(time.Since(start), accepted, rejected, err)
}

// Release removes the displayed run from the scene. It is a no-op when
// nothing is displayed.
func (s *Session) Release(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(ctx)
}

func (s *Session) releaseLocked(ctx context.Context) {
	if s.current == nil {
		return
	}
	s.releaseRun(ctx, s.current)
	s.current = nil
}

// releaseRun removes every entity of run that made it into the scene.
// Entities already gone are ignored.
func (s *Session) releaseRun(ctx context.Context, run *Run) {
	var errs []error
	if run.Entity != "" {
		if err := s.scene.RemoveTrajectory(run.Entity); err != nil && !errors.Is(err, kb.ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}
	for _, h := range run.Points {
		if err := s.scene.RemoveRenderablePoint(h); err != nil && !errors.Is(err, kb.ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Warn(ctx, "release left scene entities behind", logging.Err(err))
	}
	s.log.Debug(ctx, "released run",
		logging.String("run_id", run.ID),
		logging.Int("points", len(run.Points)),
	)
}

// Current returns a copy of the displayed run.
func (s *Session) Current() (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.clone(), true
}

func (r *Run) clone() *Run {
	c := *r
	c.Points = slices.Clone(r.Points)
	return &c
}

// ShowPoints shows or hides the displayed run's sample points.
func (s *Session) ShowPoints(visible bool) error {
	return s.withCurrent(func(r *Run) error {
		return s.scene.SetPointsVisible(r.Points, visible)
	})
}

// ShowPath shows or hides the displayed trajectory's path.
func (s *Session) ShowPath(visible bool) error {
	return s.withCurrent(func(r *Run) error {
		return s.scene.SetTrajectoryPathVisible(r.Entity, visible)
	})
}

// Focus zooms the view to the displayed trajectory.
func (s *Session) Focus() error {
	return s.withCurrent(func(r *Run) error { return s.scene.FocusOn(r.Entity) })
}

// Track makes the view follow the displayed trajectory.
func (s *Session) Track() error {
	return s.withCurrent(func(r *Run) error { return s.scene.Track(r.Entity) })
}

// Position returns the displayed trajectory's position at t. Times outside
// the window fail with core.ErrOutsideWindow.
func (s *Session) Position(t time.Time) (r3.Vec, error) {
	var pos r3.Vec
	err := s.withCurrent(func(r *Run) error {
		if !r.Trajectory.Window.Contains(t) {
			return fmt.Errorf("%w: %s not in [%s, %s]", core.ErrOutsideWindow,
				t.Format(time.RFC3339Nano),
				r.Trajectory.Window.Start.Format(time.RFC3339Nano),
				r.Trajectory.Window.Stop.Format(time.RFC3339Nano))
		}
		var err error
		pos, err = r.Trajectory.Curve.At(t)
		return err
	})
	return pos, err
}

// PathRange returns the part of the path drawn at playback time now.
func (s *Session) PathRange(now time.Time) (core.PathRange, error) {
	var pr core.PathRange
	err := s.withCurrent(func(r *Run) error {
		pr = core.VisiblePathRange(r.Trajectory.Window, now, r.Trajectory.Settings)
		return nil
	})
	return pr, err
}

func (s *Session) withCurrent(fn func(*Run) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoTrajectory
	}
	return fn(s.current)
}
