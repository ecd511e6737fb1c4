// Command forecaster runs the lagfit forecast service.
//
// For every configured series it periodically collects a window of history,
// searches every candidate lag structure of the configured model family,
// forecasts with the best candidate and stores the snapshot.
//
// HTTP API (default :8081):
//   - GET /forecast/current?series=<name> - latest forecast snapshot
//   - GET /models - models built so far, with their best candidate
//   - GET /models/candidates?series=<name>&limit=<n> - top ranked candidates
//   - GET /healthz, /readyz - liveness and store readiness
//   - GET /metrics - Prometheus metrics
//
// gRPC (default :9091) serves grpc.health.v1 with one service per series, plus
// server reflection.
//
// Usage:
//
//	forecaster \
//	  -series=api-rps \
//	  -adapter=prometheus \
//	  -family=arima -lags=12 -periods=30 \
//	  -step=1m -window=6h -interval=5m
//
// Environment variables:
//
//	SERIES, ADAPTER, FAMILY, LAGS, FACTORS, PERIODS, WORKERS, INTEGRATE
//	STEP, WINDOW, INTERVAL, TOP_CANDIDATES, CONFIG_FILE
//	LISTEN, GRPC_LISTEN, STORAGE, MEMORY_TTL
//	REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_TTL
//	LOG_LEVEL, LOG_FORMAT
//	ADAPTER_* - adapter settings, e.g. ADAPTER_QUERY, ADAPTER_URL, ADAPTER_PATH
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/lagfit/cmd/forecaster/config"
	"github.com/HatiCode/lagfit/cmd/forecaster/logger"
	"github.com/HatiCode/lagfit/cmd/forecaster/metrics"
	"github.com/HatiCode/lagfit/cmd/forecaster/router"
	"github.com/HatiCode/lagfit/pkg/adapters"
	"github.com/HatiCode/lagfit/pkg/httpx"
	"github.com/HatiCode/lagfit/pkg/models"
	"github.com/HatiCode/lagfit/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	series, err := config.LoadSeries(cfg)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("starting lagfit forecaster", "version", version, "series", len(series), "storage", cfg.Storage)

	store, closeStore, err := newStore(cfg)
	if err != nil {
		log.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := models.NewRegistry()
	healthSrv := health.NewServer()

	forecasters := make([]*SeriesForecaster, 0, len(series))
	var maxInterval time.Duration
	for _, sc := range series {
		adapter, err := adapters.New(sc.Adapter, sc.AdapterConfig, int(sc.Step.Seconds()))
		if err != nil {
			log.Error("failed to create adapter", "series", sc.Name, "error", err)
			os.Exit(1)
		}
		healthSrv.SetServingStatus(sc.Name, healthpb.HealthCheckResponse_NOT_SERVING)
		forecasters = append(forecasters, NewSeriesForecaster(sc, adapter, store, registry, m, healthSrv, log))
		maxInterval = max(maxInterval, sc.Interval)
	}

	mux := router.SetupRoutes(router.Options{
		Store:      store,
		Registry:   registry,
		StaleAfter: 2 * maxInterval,
		Logger:     log,
	})
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(log), httpx.LoggingMiddleware(log))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	for _, f := range forecasters {
		g.Go(func() error {
			if err := f.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Stop(10 * time.Second)
	})

	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen for gRPC", "addr", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		grpcServer := grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthSrv)
		reflection.Register(grpcServer)

		g.Go(func() error {
			log.Info("starting gRPC health server", "addr", cfg.GRPCListen)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthSrv.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("forecaster stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// newStore returns the configured snapshot store and its close function.
func newStore(cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	default:
		if cfg.MemoryTTL > 0 {
			ms := storage.NewMemoryStoreWithTTL(cfg.MemoryTTL, cfg.MemoryTTL/2)
			return ms, func() error { ms.Stop(); return nil }, nil
		}
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}
}
