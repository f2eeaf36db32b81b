package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/route-playback/internal/api"
	"github.com/signalsfoundry/route-playback/internal/config"
	"github.com/signalsfoundry/route-playback/internal/logging"
	"github.com/signalsfoundry/route-playback/internal/observability"
	"github.com/signalsfoundry/route-playback/internal/runstore"
	"github.com/signalsfoundry/route-playback/internal/session"
	"github.com/signalsfoundry/route-playback/internal/transport"
	"github.com/signalsfoundry/route-playback/kb"
	"github.com/signalsfoundry/route-playback/timectrl"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml); environment variables take precedence")
	httpAddr := flag.String("http-addr", "", "Override HTTP_ADDR")
	grpcAddr := flag.String("grpc-addr", "", "Override GRPC_ADDR")
	metricsAddr := flag.String("metrics-addr", "", "Override METRICS_ADDR; \"off\" disables the metrics listener")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if cfg.MetricsAddr == "off" {
		cfg.MetricsAddr = ""
	}

	log := logging.New(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := listen(cfg)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners are the sockets the server accepts on. Metrics may be nil.
type listeners struct {
	HTTP    net.Listener
	GRPC    net.Listener
	Metrics net.Listener
}

func listen(cfg config.Config) (listeners, error) {
	var lis listeners
	var err error
	if lis.HTTP, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return lis, fmt.Errorf("http %s: %w", cfg.HTTPAddr, err)
	}
	if lis.GRPC, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
		lis.HTTP.Close()
		return lis, fmt.Errorf("grpc %s: %w", cfg.GRPCAddr, err)
	}
	if cfg.MetricsAddr != "" {
		if lis.Metrics, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
			lis.HTTP.Close()
			lis.GRPC.Close()
			return lis, fmt.Errorf("metrics %s: %w", cfg.MetricsAddr, err)
		}
	}
	return lis, nil
}

// run serves the playback API until ctx is cancelled, then shuts every
// surface down gracefully.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	pipelineMetrics, err := observability.NewPipelineCollector(reg)
	if err != nil {
		return fmt.Errorf("pipeline metrics: %w", err)
	}

	store, err := runstore.Open(cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("run store: %w", err)
	}
	defer store.Close()

	converter := transport.NewClient(cfg.ConverterURL, cfg.ConverterTimeout,
		transport.WithCache(cfg.CacheSize, cfg.CacheTTL),
		transport.WithCacheRecorder(pipelineMetrics),
		transport.WithLogger(log),
	)

	clock := timectrl.NewPlaybackClock(cfg.ClockMultiplier, timectrl.LoopStop)
	scene := kb.NewScene(clock, kb.WithMetricsRecorder(collector))

	sess := session.New(scene,
		session.WithConverter(converter),
		session.WithRunRecorder(store),
		session.WithMetrics(pipelineMetrics),
		session.WithLogger(log),
		session.WithSettings(cfg.Settings()),
		session.WithModel(kb.ModelRef{URI: cfg.ModelURI, MinimumPixelSize: cfg.ModelMinPixels}),
	)

	apiServer := api.NewServer(sess, scene, clock,
		api.WithRunStore(store),
		api.WithHTTPMetrics(collector),
		api.WithLogger(log),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	httpSrv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv, health := api.NewGRPCServer(log, collector)

	var metricsSrv *http.Server
	if lis.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	clockDone := clock.Start(ctx, cfg.ClockTick)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "serving HTTP API", logging.String("addr", lis.HTTP.Addr().String()))
		if err := httpSrv.Serve(lis.HTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info(gctx, "serving gRPC health", logging.String("addr", lis.GRPC.Addr().String()))
		if err := grpcSrv.Serve(lis.GRPC); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", lis.Metrics.Addr().String()))
			if err := metricsSrv.Serve(lis.Metrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	health.SetServingStatus(api.HealthService, healthpb.HealthCheckResponse_SERVING)
	log.Info(ctx, "route playback ready",
		logging.String("converter", cfg.ConverterURL),
		logging.String("db", cfg.DBPath),
		logging.Float64("clock_multiplier", cfg.ClockMultiplier),
	)

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down route playback")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		grpcSrv.GracefulStop()
		sess.Release(shutdownCtx)
		return nil
	})

	err = g.Wait()
	cancel()
	<-clockDone
	return err
}
