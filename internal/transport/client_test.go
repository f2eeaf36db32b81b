package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const convertedBody = `{
  "file_size": 512,
  "geoJSON": {
    "type": "FeatureCollection",
    "features": [{
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[8.5, 47.3, 400], [8.6, 47.4, 420]]},
      "properties": {"name": "route", "times": ["2024-05-01T10:00:00Z", "2024-05-01T10:00:10Z"]}
    }]
  }
}`

type fakeRecorder struct {
	mu           sync.Mutex
	hits, misses int
	errors       int
}

func (r *fakeRecorder) ObserveCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *fakeRecorder) IncConvertErrors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func converterServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != ConvertPath {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		if hdr.Filename != "route.kml" || string(content) != "<kml/>" {
			http.Error(w, "unexpected upload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, convertedBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConvertDecodesResponse(t *testing.T) {
	var calls atomic.Int32
	srv := converterServer(t, &calls)
	client := NewClient(srv.URL+"/", time.Second)

	res, err := client.Convert(context.Background(), "route.kml", []byte("<kml/>"))
	require.NoError(t, err)

	assert.Equal(t, int64(512), res.FileSize)
	feature, ok := res.GeoJSON.First()
	require.True(t, ok)
	assert.Equal(t, 2, feature.Len())
	assert.Equal(t, []float64{8.6, 47.4, 420}, feature.Geometry.Coordinates[1])
	assert.Equal(t, "2024-05-01T10:00:10Z", feature.Properties.Times[1])
}

func TestConvertCachesByContent(t *testing.T) {
	var calls atomic.Int32
	srv := converterServer(t, &calls)
	rec := &fakeRecorder{}
	client := NewClient(srv.URL, time.Second, WithCacheRecorder(rec))

	for range 3 {
		_, err := client.Convert(context.Background(), "route.kml", []byte("<kml/>"))
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestConvertWithoutCacheAlwaysPosts(t *testing.T) {
	var calls atomic.Int32
	srv := converterServer(t, &calls)
	client := NewClient(srv.URL, time.Second, WithCache(0, 0))

	for range 2 {
		_, err := client.Convert(context.Background(), "route.kml", []byte("<kml/>"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestConvertNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cannot parse kml", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	rec := &fakeRecorder{}
	client := NewClient(srv.URL, time.Second, WithCacheRecorder(rec))

	_, err := client.Convert(context.Background(), "bad.kml", []byte("nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Code)
	assert.Equal(t, "cannot parse kml", statusErr.Body)
	assert.Equal(t, 1, rec.errors)
}

func TestConvertFailedResultIsNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, convertedBody)
	}))
	defer srv.Close()
	client := NewClient(srv.URL, time.Second)

	_, err := client.Convert(context.Background(), "route.kml", []byte("<kml/>"))
	require.Error(t, err)
	_, err = client.Convert(context.Background(), "route.kml", []byte("<kml/>"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConvertMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Convert(context.Background(), "route.kml", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestConvertUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, 200*time.Millisecond).Convert(context.Background(), "route.kml", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}
