package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// describeFirst renders the info-box HTML for the reference sample, which has
// no predecessor to measure against.
func describeFirst(s AcceptedSample) string {
	var b strings.Builder
	b.WriteString("<div>\n<h3>Route point</h3>\n")
	fmt.Fprintf(&b, "<p>Index: %d</p>\n", s.Index)
	fmt.Fprintf(&b, "<p>Coordinates (geographic): %s</p>\n", formatGeographic(s))
	fmt.Fprintf(&b, "<p>Date: %s</p>\n", s.Time.Format(time.RFC3339Nano))
	b.WriteString("</div>")
	return b.String()
}

func describe(s AcceptedSample) string {
	var b strings.Builder
	b.WriteString("<div>\n<h3>Route point</h3>\n")
	fmt.Fprintf(&b, "<p>Index: %d</p>\n", s.Index)
	fmt.Fprintf(&b, "<p>Coordinates (cartesian): (%.2f, %.2f, %.2f)</p>\n", s.Position.X, s.Position.Y, s.Position.Z)
	fmt.Fprintf(&b, "<p>Coordinates (geographic): %s</p>\n", formatGeographic(s))
	fmt.Fprintf(&b, "<p>Distance from previous point (m): %.2f</p>\n", s.Distance)
	fmt.Fprintf(&b, "<p>Time delta (s): %.2f</p>\n", s.TimeDelta)
	fmt.Fprintf(&b, "<p>Date: %s</p>\n", s.Time.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "<p>Speed (m/s): %.2f</p>\n", s.Speed)
	fmt.Fprintf(&b, "<p>Acceleration (m/s^2): %.2f</p>\n", s.Acceleration)
	b.WriteString("</div>")
	return b.String()
}

func formatGeographic(s AcceptedSample) string {
	return strings.Join([]string{
		strconv.FormatFloat(s.Coordinate.Lon, 'f', -1, 64),
		strconv.FormatFloat(s.Coordinate.Lat, 'f', -1, 64),
		strconv.FormatFloat(s.Coordinate.Alt, 'f', -1, 64),
	}, ",")
}
