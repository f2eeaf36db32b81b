// Command trajectory runs the route pipeline over a GeoJSON file and prints
// the accepted and rejected samples, optionally stepping a playback clock
// through the resulting trajectory.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/model"
	"github.com/signalsfoundry/route-playback/timectrl"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "trajectory: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("trajectory", flag.ContinueOnError)
	fs.SetOutput(out)
	defaults := core.DefaultSettings()
	maxVelocity := fs.Float64("max-velocity", defaults.MaxVelocity, "acceleration bound in m/s^2; <= 0 disables filtering")
	start := fs.Int("start", 0, "first feature index to process")
	end := fs.Int("end", 0, "exclusive end index; 0 processes to the end")
	lead := fs.Float64("lead", 0, "path lead time in seconds")
	trail := fs.Float64("trail", 0, "path trail time in seconds")
	ticks := fs.Int("play", 0, "number of playback ticks to step through")
	tick := fs.Duration("tick", time.Second, "wall-clock duration of one playback tick")
	multiplier := fs.Float64("multiplier", timectrl.DefaultMultiplier, "playback speed relative to wall-clock time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: trajectory [flags] <route.geojson>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	feature, err := decodeFeature(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}

	settings := core.Settings{MaxVelocity: *maxVelocity, StartIndex: *start, EndIndex: *end, LeadTime: *lead, TrailTime: *trail}
	tr, err := core.BuildTrajectory(feature, settings)
	if err != nil {
		return err
	}

	printTrajectory(out, tr)
	if *ticks > 0 {
		play(out, tr, *ticks, *tick, *multiplier)
	}
	return nil
}

// decodeFeature accepts a converter response, a FeatureCollection or a bare
// Feature, returning the first feature.
func decodeFeature(data []byte) (model.Feature, error) {
	var probe struct {
		Type     string          `json:"type"`
		GeoJSON  json.RawMessage `json:"geoJSON"`
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return model.Feature{}, fmt.Errorf("%w: %v", core.ErrParse, err)
	}

	var fc model.FeatureCollection
	switch {
	case probe.GeoJSON != nil:
		var res model.ConversionResult
		if err := json.Unmarshal(data, &res); err != nil {
			return model.Feature{}, fmt.Errorf("%w: %v", core.ErrParse, err)
		}
		fc = res.GeoJSON
	case probe.Type == "FeatureCollection" || probe.Features != nil:
		if err := json.Unmarshal(data, &fc); err != nil {
			return model.Feature{}, fmt.Errorf("%w: %v", core.ErrParse, err)
		}
	default:
		var f model.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return model.Feature{}, fmt.Errorf("%w: %v", core.ErrParse, err)
		}
		return f, nil
	}

	f, ok := fc.First()
	if !ok {
		return model.Feature{}, errors.New("feature collection is empty")
	}
	return f, nil
}

func printTrajectory(out io.Writer, tr *core.Trajectory) {
	fmt.Fprintf(out, "Window %s .. %s (%s)\n",
		tr.Window.Start.Format(time.RFC3339), tr.Window.Stop.Format(time.RFC3339), tr.Window.Duration())
	fmt.Fprintf(out, "Accepted %d of %d samples, path %.1f m, max speed %.2f m/s\n",
		tr.Stats.AcceptedCount, tr.Stats.RawCount, tr.Stats.PathLength, tr.Stats.MaxSpeed)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTIME\tLON\tLAT\tALT\tSPEED\tACCEL")
	for _, s := range tr.Samples {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%.6f\t%.1f\t%.2f\t%.2f\n",
			s.Index, s.Time.Format(time.RFC3339), s.Coordinate.Lon, s.Coordinate.Lat, s.Coordinate.Alt, s.Speed, s.Acceleration)
	}
	tw.Flush()

	for _, r := range tr.Rejected {
		fmt.Fprintf(out, "rejected #%d at %s: speed %.2f m/s, acceleration %.2f m/s^2\n",
			r.Index, r.Time.Format(time.RFC3339), r.Speed, r.Acceleration)
	}
}

// play steps a playback clock over the trajectory window without waiting on
// the wall clock, printing the interpolated position at every tick.
func play(out io.Writer, tr *core.Trajectory, ticks int, tick time.Duration, multiplier float64) {
	clock := timectrl.NewPlaybackClock(multiplier, timectrl.LoopStop)
	clock.SetWindow(tr.Window.Start, tr.Window.Stop)

	clock.AddListener(func(now time.Time) {
		pos, err := tr.Curve.At(now)
		if err != nil {
			fmt.Fprintf(out, "[%s] %v\n", now.Format(time.RFC3339), err)
			return
		}
		pr := core.VisiblePathRange(tr.Window, now, tr.Settings)
		fmt.Fprintf(out, "[%s] position (%.0f, %.0f, %.0f) path %s .. %s\n",
			now.Format(time.RFC3339), pos.X, pos.Y, pos.Z,
			pr.From.Format(time.RFC3339), pr.To.Format(time.RFC3339))
	})

	for range ticks {
		clock.Advance(tick)
	}
}
