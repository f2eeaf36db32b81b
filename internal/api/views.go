package api

import (
	"time"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/session"
	"github.com/signalsfoundry/route-playback/kb"
)

type sampleView struct {
	Index        int       `json:"index"`
	Time         time.Time `json:"time"`
	Lon          float64   `json:"lon"`
	Lat          float64   `json:"lat"`
	Alt          float64   `json:"alt"`
	Distance     float64   `json:"distance"`
	TimeDelta    float64   `json:"time_delta"`
	Speed        float64   `json:"speed"`
	Acceleration float64   `json:"acceleration"`
	Description  string    `json:"description"`
}

type rejectedView struct {
	Index        int       `json:"index"`
	Time         time.Time `json:"time"`
	Speed        float64   `json:"speed"`
	Acceleration float64   `json:"acceleration"`
}

type runView struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	FileSize int64          `json:"file_size,omitempty"`
	Entity   kb.Handle      `json:"entity"`
	Points   []kb.Handle    `json:"points"`
	Settings core.Settings  `json:"settings"`
	Window   core.Window    `json:"window"`
	Stats    core.Stats     `json:"stats"`
	Samples  []sampleView   `json:"samples"`
	Rejected []rejectedView `json:"rejected"`
}

func newRunView(r *session.Run) runView {
	tr := r.Trajectory
	v := runView{
		ID:       r.ID,
		Source:   r.Source,
		FileSize: r.FileSize,
		Entity:   r.Entity,
		Points:   r.Points,
		Settings: tr.Settings,
		Window:   tr.Window,
		Stats:    tr.Stats,
		Samples:  make([]sampleView, len(tr.Samples)),
		Rejected: make([]rejectedView, len(tr.Rejected)),
	}
	for i, s := range tr.Samples {
		v.Samples[i] = sampleView{
			Index:        s.Index,
			Time:         s.Time,
			Lon:          s.Coordinate.Lon,
			Lat:          s.Coordinate.Lat,
			Alt:          s.Coordinate.Alt,
			Distance:     s.Distance,
			TimeDelta:    s.TimeDelta,
			Speed:        s.Speed,
			Acceleration: s.Acceleration,
			Description:  s.Description,
		}
	}
	for i, s := range tr.Rejected {
		v.Rejected[i] = rejectedView{Index: s.Index, Time: s.Time, Speed: s.Speed, Acceleration: s.Acceleration}
	}
	return v
}

type positionView struct {
	Time time.Time `json:"time"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	Z    float64   `json:"z"`
}

type clockView struct {
	Now        time.Time    `json:"now"`
	Multiplier float64      `json:"multiplier"`
	Window     *core.Window `json:"window,omitempty"`
}
