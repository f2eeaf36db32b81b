package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("grpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "grpc_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("grpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("grpc_requests_total error label = %v, want 1", got)
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	h := collector.HTTPMiddleware("/api/feature", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/feature", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/feature", http.MethodPost, "422")); got != 1 {
		t.Fatalf("http_requests_total{code=422} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "http_request_duration_seconds", map[string]string{
		"route":  "/api/feature",
		"method": http.MethodPost,
	}); count != 1 {
		t.Fatalf("http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesSceneGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.SetSceneCounts(7, 1)

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{"scene_points 7", "scene_trajectories 1"} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output:\n%s", line, body)
		}
	}
}

func TestCollectorRegistersTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	if first.HTTPRequests != second.HTTPRequests {
		t.Fatalf("second collector did not reuse registered counter")
	}
}

func TestPipelineCollectorObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	collector.ObserveRun(20*time.Millisecond, 5, 2, nil)
	collector.ObserveRun(time.Millisecond, 0, 0, errors.New("degenerate"))

	if got := testutil.ToFloat64(collector.RunsTotal.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Fatalf("runs{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RunsTotal.WithLabelValues(OutcomeFailure)); got != 1 {
		t.Fatalf("runs{failure} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SamplesTotal.WithLabelValues("rejected")); got != 2 {
		t.Fatalf("samples{rejected} = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "trajectory_run_duration_seconds", nil); count != 2 {
		t.Fatalf("run duration sample_count = %d, want 2", count)
	}
}

func TestPipelineCollectorCacheLookups(t *testing.T) {
	collector, err := NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	collector.ObserveCacheLookup(false)
	collector.ObserveCacheLookup(true)
	collector.ObserveCacheLookup(true)

	if got := testutil.ToFloat64(collector.CacheLookups.WithLabelValues("hit")); got != 2 {
		t.Fatalf("cache{hit} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.CacheLookups.WithLabelValues("miss")); got != 1 {
		t.Fatalf("cache{miss} = %v, want 1", got)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *Collector
	c.SetSceneCounts(1, 1)
	var p *PipelineCollector
	p.ObserveRun(time.Second, 1, 1, nil)
	p.ObserveCacheLookup(true)
	p.IncConvertErrors()
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in              string
		service, method string
	}{
		{"/grpc.health.v1.Health/Check", "Health", "Check"},
		{"", "unknown", "unknown"},
		{"Check", "unknown", "unknown"},
	}
	for _, tt := range tests {
		service, method := SplitMethod(tt.in)
		if service != tt.service || method != tt.method {
			t.Fatalf("SplitMethod(%q) = (%q, %q), want (%q, %q)", tt.in, service, method, tt.service, tt.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
