package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/route-playback/core"
)

const spikeFeature = `{
  "type": "Feature",
  "geometry": {"type": "LineString", "coordinates": [[0, 0, 0], [0, 0, 100], [0, 0, 100000], [0, 0, 300]]},
  "properties": {"times": ["2024-05-01T10:00:00Z", "2024-05-01T10:00:10Z", "2024-05-01T10:00:20Z", "2024-05-01T10:00:30Z"]}
}`

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "route.geojson")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunPrintsAcceptedAndRejected(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{writeInput(t, spikeFeature)}, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Accepted 3 of 4 samples",
		"rejected #2 at 2024-05-01T10:00:20Z",
		"2024-05-01T10:00:00Z .. 2024-05-01T10:00:30Z",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunDisabledFilterKeepsEverySample(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-max-velocity", "0", writeInput(t, spikeFeature)}, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out.String(), "Accepted 4 of 4 samples") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRunPlaysBackTicks(t *testing.T) {
	var out bytes.Buffer
	args := []string{"-play", "4", "-tick", "1s", "-multiplier", "10", writeInput(t, spikeFeature)}
	if err := run(args, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"[2024-05-01T10:00:10Z]", "[2024-05-01T10:00:30Z]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	// The fourth tick passes the stop time and wraps to the start.
	if !strings.Contains(got, "[2024-05-01T10:00:00Z]") {
		t.Fatalf("playback did not loop:\n%s", got)
	}
}

func TestDecodeFeatureFormats(t *testing.T) {
	inner := `{"geometry": {"coordinates": [[1, 2]]}, "properties": {"name": "a", "times": ["2024-05-01T10:00:00Z"]}}`
	inputs := map[string]string{
		"feature":    inner,
		"collection": `{"type": "FeatureCollection", "features": [` + inner + `]}`,
		"converter":  `{"file_size": 10, "geoJSON": {"features": [` + inner + `]}}`,
	}
	for name, data := range inputs {
		f, err := decodeFeature([]byte(data))
		if err != nil {
			t.Fatalf("%s: decodeFeature error: %v", name, err)
		}
		if f.Properties.Name != "a" || f.Len() != 1 {
			t.Fatalf("%s: feature = %#v", name, f)
		}
	}

	if _, err := decodeFeature([]byte(`{"features": []}`)); err == nil {
		t.Fatalf("empty collection decoded without error")
	}
	if _, err := decodeFeature([]byte(`[`)); !errors.Is(err, core.ErrParse) {
		t.Fatalf("malformed input error = %v, want ErrParse", err)
	}
}

func TestRunRequiresInput(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("run without input returned nil error")
	}
}
