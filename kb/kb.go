package kb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brunoga/deep"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/timectrl"
)

var (
	// ErrEntityNotFound indicates a handle that does not name a live entity.
	ErrEntityNotFound = errors.New("scene entity not found")
	// ErrInvalidEntity indicates an entity that cannot be added to the scene.
	ErrInvalidEntity = errors.New("invalid scene entity")
)

// Handle identifies an entity installed in the scene.
type Handle string

// EventType indicates what kind of change happened in the scene.
type EventType int

const (
	EventPointAdded EventType = iota
	EventPointRemoved
	EventPointsVisibility
	EventTrajectoryAdded
	EventTrajectoryRemoved
	EventPathVisibility
	EventClockWindow
	EventFocus
	EventTrack
)

// Event is emitted to subscribers when the scene changes.
type Event struct {
	Type    EventType
	Handles []Handle
}

// PointStyle is how a renderable point is drawn.
type PointStyle struct {
	PixelSize int    `json:"pixel_size"`
	Color     string `json:"color"`
}

// DefaultPointStyle draws waypoints as 8px red dots.
var DefaultPointStyle = PointStyle{PixelSize: 8, Color: "red"}

// Point is a renderable waypoint.
type Point struct {
	Handle      Handle     `json:"handle"`
	Position    r3.Vec     `json:"position"`
	Description string     `json:"description"`
	Visible     bool       `json:"visible"`
	Style       PointStyle `json:"style"`
}

// ModelRef references the 3-D model drawn at the trajectory's position.
type ModelRef struct {
	URI              string `json:"uri"`
	MinimumPixelSize int    `json:"minimum_pixel_size"`
}

// DefaultModel is the drone model shown along uploaded routes.
var DefaultModel = ModelRef{URI: "Models/CesiumDrone.glb", MinimumPixelSize: 64}

// PathStyle is how the trajectory path is drawn. Nil lead or trail times
// draw the whole path on that side of the playback time.
type PathStyle struct {
	Color     string         `json:"color"`
	Width     int            `json:"width"`
	LeadTime  *time.Duration `json:"lead_time,omitempty"`
	TrailTime *time.Duration `json:"trail_time,omitempty"`
}

// TrajectorySpec describes a trajectory entity to add.
type TrajectorySpec struct {
	Curve       *core.PositionCurve
	Window      core.Window
	Orientation core.OrientationFunc
	Model       ModelRef
	Path        PathStyle
}

// TrajectoryView is the serialisable state of a trajectory entity.
type TrajectoryView struct {
	Handle       Handle            `json:"handle"`
	Window       core.Window       `json:"window"`
	Availability core.Availability `json:"availability"`
	Model        ModelRef          `json:"model"`
	Path         PathStyle         `json:"path"`
	PathVisible  bool              `json:"path_visible"`
	Samples      int               `json:"samples"`
}

type trajectoryEntry struct {
	view        TrajectoryView
	curve       *core.PositionCurve
	orientation core.OrientationFunc
}

// SceneMetricsRecorder receives entity counts whenever the scene changes.
type SceneMetricsRecorder interface {
	SetSceneCounts(points, trajectories int)
}

// Scene is an in-memory, thread-safe store of the renderable points and
// trajectory entities currently displayed, plus the playback clock.
type Scene struct {
	mu sync.RWMutex

	points       map[Handle]*Point
	trajectories map[Handle]*trajectoryEntry

	clock   *timectrl.PlaybackClock
	focused Handle
	tracked Handle

	metrics SceneMetricsRecorder
	subs    []func(Event)
}

// SceneOption customises Scene construction.
type SceneOption func(*Scene)

// WithMetricsRecorder attaches a recorder for entity count gauges.
func WithMetricsRecorder(m SceneMetricsRecorder) SceneOption {
	return func(s *Scene) {
		s.metrics = m
	}
}

// NewScene constructs an empty scene driving the given clock. A nil clock
// gets a LoopStop clock at the default multiplier.
func NewScene(clock *timectrl.PlaybackClock, opts ...SceneOption) *Scene {
	if clock == nil {
		clock = timectrl.NewPlaybackClock(timectrl.DefaultMultiplier, timectrl.LoopStop)
	}
	s := &Scene{
		points:       make(map[Handle]*Point),
		trajectories: make(map[Handle]*trajectoryEntry),
		clock:        clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the scene's playback clock.
func (s *Scene) Clock() *timectrl.PlaybackClock { return s.clock }

// AddRenderablePoint adds a visible waypoint and returns its handle.
func (s *Scene) AddRenderablePoint(pos r3.Vec, description string) (Handle, error) {
	h := newHandle("point")
	s.mu.Lock()
	s.points[h] = &Point{
		Handle:      h,
		Position:    pos,
		Description: description,
		Visible:     true,
		Style:       DefaultPointStyle,
	}
	s.mu.Unlock()

	s.changed(Event{Type: EventPointAdded, Handles: []Handle{h}})
	return h, nil
}

// RemoveRenderablePoint removes a waypoint.
func (s *Scene) RemoveRenderablePoint(h Handle) error {
	s.mu.Lock()
	if _, ok := s.points[h]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: point %q", ErrEntityNotFound, h)
	}
	delete(s.points, h)
	s.clearFocusLocked(h)
	s.mu.Unlock()

	s.changed(Event{Type: EventPointRemoved, Handles: []Handle{h}})
	return nil
}

// SetPointsVisible shows or hides the given waypoints. Unknown handles fail
// the call before any point changes.
func (s *Scene) SetPointsVisible(handles []Handle, visible bool) error {
	s.mu.Lock()
	for _, h := range handles {
		if _, ok := s.points[h]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: point %q", ErrEntityNotFound, h)
		}
	}
	for _, h := range handles {
		s.points[h].Visible = visible
	}
	s.mu.Unlock()

	s.changed(Event{Type: EventPointsVisibility, Handles: append([]Handle(nil), handles...)})
	return nil
}

// AddTrajectory installs a trajectory entity with its path visible.
func (s *Scene) AddTrajectory(spec TrajectorySpec) (Handle, error) {
	if spec.Curve == nil {
		return "", fmt.Errorf("%w: trajectory has no position curve", ErrInvalidEntity)
	}
	if spec.Window.Stop.Before(spec.Window.Start) {
		return "", fmt.Errorf("%w: window stop %s before start %s", ErrInvalidEntity, spec.Window.Stop, spec.Window.Start)
	}
	if spec.Path.Width == 0 {
		spec.Path.Width = 5
	}
	if spec.Path.Color == "" {
		spec.Path.Color = "white"
	}

	h := newHandle("trajectory")
	s.mu.Lock()
	s.trajectories[h] = &trajectoryEntry{
		view: TrajectoryView{
			Handle:       h,
			Window:       spec.Window,
			Availability: spec.Window.Availability(),
			Model:        spec.Model,
			Path:         spec.Path,
			PathVisible:  true,
			Samples:      spec.Curve.Len(),
		},
		curve:       spec.Curve,
		orientation: spec.Orientation,
	}
	s.mu.Unlock()

	s.changed(Event{Type: EventTrajectoryAdded, Handles: []Handle{h}})
	return h, nil
}

// RemoveTrajectory removes a trajectory entity.
func (s *Scene) RemoveTrajectory(h Handle) error {
	s.mu.Lock()
	if _, ok := s.trajectories[h]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: trajectory %q", ErrEntityNotFound, h)
	}
	delete(s.trajectories, h)
	s.clearFocusLocked(h)
	s.mu.Unlock()

	s.changed(Event{Type: EventTrajectoryRemoved, Handles: []Handle{h}})
	return nil
}

// SetTrajectoryPathVisible shows or hides a trajectory's path.
func (s *Scene) SetTrajectoryPathVisible(h Handle, visible bool) error {
	s.mu.Lock()
	e, ok := s.trajectories[h]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: trajectory %q", ErrEntityNotFound, h)
	}
	e.view.PathVisible = visible
	s.mu.Unlock()

	s.changed(Event{Type: EventPathVisibility, Handles: []Handle{h}})
	return nil
}

// SetClockWindow bounds playback to [start, stop] and rewinds to start.
func (s *Scene) SetClockWindow(start, stop time.Time) {
	s.clock.SetWindow(start, stop)
	s.changed(Event{Type: EventClockWindow})
}

// FocusOn frames the camera on an entity. Focusing stops tracking.
func (s *Scene) FocusOn(h Handle) error {
	s.mu.Lock()
	if !s.existsLocked(h) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityNotFound, h)
	}
	s.focused = h
	s.tracked = ""
	s.mu.Unlock()

	s.changed(Event{Type: EventFocus, Handles: []Handle{h}})
	return nil
}

// Track makes the camera follow an entity.
func (s *Scene) Track(h Handle) error {
	s.mu.Lock()
	if !s.existsLocked(h) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityNotFound, h)
	}
	s.tracked = h
	s.mu.Unlock()

	s.changed(Event{Type: EventTrack, Handles: []Handle{h}})
	return nil
}

// TrajectoryPosition returns the entity's interpolated position and
// direction of travel at t. ok is false outside the entity's availability.
func (s *Scene) TrajectoryPosition(h Handle, t time.Time) (pos r3.Vec, heading r3.Vec, ok bool, err error) {
	s.mu.RLock()
	e, found := s.trajectories[h]
	s.mu.RUnlock()
	if !found {
		return r3.Vec{}, r3.Vec{}, false, fmt.Errorf("%w: trajectory %q", ErrEntityNotFound, h)
	}
	if !e.view.Availability.Contains(t) {
		return r3.Vec{}, r3.Vec{}, false, nil
	}
	pos, err = e.curve.At(t)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, false, err
	}
	if e.orientation != nil {
		heading, _ = e.orientation(t)
	}
	return pos, heading, true, nil
}

// Snapshot is a consistent, caller-owned copy of the scene state.
type Snapshot struct {
	Points       []Point          `json:"points"`
	Trajectories []TrajectoryView `json:"trajectories"`
	Focused      Handle           `json:"focused,omitempty"`
	Tracked      Handle           `json:"tracked,omitempty"`
	ClockStart   time.Time        `json:"clock_start"`
	ClockStop    time.Time        `json:"clock_stop"`
	ClockNow     time.Time        `json:"clock_now"`
}

// Snapshot returns a deep copy of the scene state; mutating it does not
// affect the scene.
func (s *Scene) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	snap := &Snapshot{
		Points:       make([]Point, 0, len(s.points)),
		Trajectories: make([]TrajectoryView, 0, len(s.trajectories)),
		Focused:      s.focused,
		Tracked:      s.tracked,
	}
	for _, p := range s.points {
		snap.Points = append(snap.Points, *p)
	}
	for _, e := range s.trajectories {
		snap.Trajectories = append(snap.Trajectories, e.view)
	}
	s.mu.RUnlock()

	// Path lead/trail times are pointers shared with the live entities.
	out, err := deep.Copy(snap)
	if err != nil {
		return nil, fmt.Errorf("copy scene snapshot: %w", err)
	}
	out.ClockStart, out.ClockStop, _ = s.clock.Window()
	out.ClockNow = s.clock.Now()
	return out, nil
}

// Counts returns the number of installed points and trajectories.
func (s *Scene) Counts() (points, trajectories int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points), len(s.trajectories)
}

// Subscribe registers a callback for scene events. It returns an unsubscribe function.
func (s *Scene) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < 0 || idx >= len(s.subs) {
			return
		}
		s.subs[idx] = nil
		idx = -1
	}
}

func (s *Scene) existsLocked(h Handle) bool {
	if _, ok := s.points[h]; ok {
		return true
	}
	_, ok := s.trajectories[h]
	return ok
}

func (s *Scene) clearFocusLocked(h Handle) {
	if s.focused == h {
		s.focused = ""
	}
	if s.tracked == h {
		s.tracked = ""
	}
}

// changed records gauges and notifies subscribers outside the lock to avoid
// deadlocks.
func (s *Scene) changed(ev Event) {
	s.mu.RLock()
	points, trajectories := len(s.points), len(s.trajectories)
	subs := append([]func(Event){}, s.subs...)
	s.mu.RUnlock()

	if s.metrics != nil {
		s.metrics.SetSceneCounts(points, trajectories)
	}
	for _, sub := range subs {
		if sub != nil {
			sub(ev)
		}
	}
}

func newHandle(kind string) Handle {
	return Handle(kind + "-" + uuid.New().String())
}
