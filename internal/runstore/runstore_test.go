package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/model"
)

var t0 = time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTrajectory(t *testing.T) *core.Trajectory {
	t.Helper()
	f := model.Feature{
		Geometry: model.Geometry{Coordinates: [][]float64{{0, 0, 0}, {0, 0, 100}, {0, 0, 200}}},
		Properties: model.FeatureProperties{Times: []string{
			"2024-05-01T10:00:00Z", "2024-05-01T10:00:10Z", "2024-05-01T10:00:20Z",
		}},
	}
	tr, err := core.BuildTrajectory(f, core.DefaultSettings())
	require.NoError(t, err)
	return tr
}

func TestOpenMigratesSchema(t *testing.T) {
	s := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestRecordAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := NewRun("route.kml", core.DefaultSettings(), testTrajectory(t), nil)
	require.NoError(t, s.RecordRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	if diff := cmp.Diff(run, got); diff != "" {
		t.Fatalf("GetRun mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got.Samples, 3)
	assert.Equal(t, 10.0, got.Samples[2].Speed)
	assert.True(t, got.Window.Stop.Equal(t0.Add(20*time.Second)))
}

func TestRecordFailedRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runErr := errors.New("filter samples: degenerate sample")
	run := NewRun("dup.kml", core.DefaultSettings(), nil, runErr)
	require.NoError(t, s.RecordRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, got.Outcome)
	assert.Equal(t, runErr.Error(), got.Error)
	assert.Nil(t, got.Window)
	assert.Empty(t, got.Samples)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound), "error = %v", err)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := range 3 {
		run := NewRun("route.kml", core.DefaultSettings(), nil, nil)
		run.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.RecordRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Nil(t, runs[0].Samples)
}

func TestSampleCodecRoundTrip(t *testing.T) {
	samples := []Sample{
		{Index: 0, Time: t0, Lon: 8.5, Lat: 47.3, Alt: 400},
		{Index: 2, Time: t0.Add(time.Second), Lon: 8.6, Lat: 47.4, Alt: 420, Distance: 12, Speed: 12, Acceleration: 12},
	}
	blob, err := encodeSamples(samples)
	require.NoError(t, err)

	got, err := decodeSamples(blob)
	require.NoError(t, err)
	if diff := cmp.Diff(samples, got); diff != "" {
		t.Fatalf("decoded samples mismatch (-want +got):\n%s", diff)
	}

	empty, err := encodeSamples(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
