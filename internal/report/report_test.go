package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/route-playback/internal/runstore"
)

func TestRenderRun(t *testing.T) {
	t0 := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	run := runstore.Run{
		ID:     "run-1",
		Source: "route.kml",
		Samples: []runstore.Sample{
			{Index: 0, Time: t0, Alt: 0},
			{Index: 1, Time: t0.Add(10 * time.Second), Alt: 100, Speed: 10, Acceleration: 1},
			{Index: 2, Time: t0.Add(20 * time.Second), Alt: 200, Speed: 10},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRun(&buf, run))

	html := buf.String()
	for _, want := range []string{"Speed and acceleration", "Altitude", "run-1", "acceleration"} {
		assert.True(t, strings.Contains(html, want), "rendered page missing %q", want)
	}
}

func TestRenderRunWithoutSamples(t *testing.T) {
	err := RenderRun(&bytes.Buffer{}, runstore.Run{ID: "failed"})
	assert.True(t, errors.Is(err, ErrNoSamples), "error = %v", err)
}
