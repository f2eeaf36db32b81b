package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/api"
	"github.com/signalsfoundry/route-playback/internal/config"
	"github.com/signalsfoundry/route-playback/internal/logging"
)

const feature = `{
  "geometry": {"coordinates": [[8.5, 47.3, 400], [8.5001, 47.3, 400], [8.5002, 47.3, 400]]},
  "properties": {"name": "smoke", "times": ["2024-05-01T10:00:00Z", "2024-05-01T10:00:10Z", "2024-05-01T10:00:20Z"]}
}`

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return lis
}

func TestPlaybackServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.Config{
		ConverterURL:     "http://127.0.0.1:1",
		ConverterTimeout: time.Second,
		CacheSize:        4,
		CacheTTL:         time.Minute,
		MaxUploadBytes:   1 << 20,
		DBPath:           filepath.Join(t.TempDir(), "playback.db"),
		ClockMultiplier:  10,
		ClockTick:        10 * time.Millisecond,
		ModelURI:         "Models/CesiumDrone.glb",
		ModelMinPixels:   64,
		LogLevel:         "warn",
		LogFormat:        "text",
		Pipeline:         core.DefaultSettings(),
	}
	lis := listeners{HTTP: mustListen(t), GRPC: mustListen(t), Metrics: mustListen(t)}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(lis.GRPC.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	health := healthpb.NewHealthClient(conn)

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: api.HealthService})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never reported SERVING: resp=%v err=%v", resp, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	base := "http://" + lis.HTTP.Addr().String()
	resp, err := http.Post(base+"/api/feature", "application/json", strings.NewReader(feature))
	if err != nil {
		t.Fatalf("POST /api/feature: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/feature status = %d, want 201", resp.StatusCode)
	}

	resp, err = http.Get("http://" + lis.Metrics.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"scene_points 3", "scene_trajectories 1", `trajectory_runs_total{outcome="success"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
