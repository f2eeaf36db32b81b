// Package report renders diagnostic charts for recorded pipeline runs.
package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/signalsfoundry/route-playback/internal/runstore"
)

// ErrNoSamples is returned for runs without accepted samples to plot.
var ErrNoSamples = errors.New("run has no samples")

// RenderRun writes an HTML page with the kinematics and altitude profile of
// run's accepted samples. The x axis is seconds since the first sample.
func RenderRun(w io.Writer, run runstore.Run) error {
	if len(run.Samples) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSamples, run.ID)
	}

	start := run.Samples[0].Time
	x := make([]string, len(run.Samples))
	speed := make([]opts.LineData, len(run.Samples))
	accel := make([]opts.LineData, len(run.Samples))
	alt := make([]opts.LineData, len(run.Samples))
	for i, s := range run.Samples {
		x[i] = strconv.FormatFloat(s.Time.Sub(start).Seconds(), 'f', -1, 64)
		speed[i] = opts.LineData{Value: s.Speed, Name: "#" + strconv.Itoa(s.Index)}
		accel[i] = opts.LineData{Value: s.Acceleration, Name: "#" + strconv.Itoa(s.Index)}
		alt[i] = opts.LineData{Value: s.Alt}
	}

	subtitle := fmt.Sprintf("run=%s source=%s accepted=%d rejected=%d max_velocity=%g",
		run.ID, run.Source, run.Stats.AcceptedCount, run.Stats.RejectedCount, run.Settings.MaxVelocity)

	kinematics := charts.NewLine()
	kinematics.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Route run " + run.ID, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Speed and acceleration", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s, m/s²"}),
	)
	kinematics.SetXAxis(x).
		AddSeries("speed", speed).
		AddSeries("acceleration", accel)

	profile := charts.NewLine()
	profile.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Altitude"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	profile.SetXAxis(x).
		AddSeries("altitude", alt, charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.2)}))

	page := components.NewPage()
	page.SetPageTitle("Route run " + run.ID)
	page.AddCharts(kinematics, profile)
	return page.Render(w)
}
