// Package main implements the forecast loop orchestration.
//
// A SeriesForecaster owns one series and runs, on every tick:
//
//	collect → series → model → build (candidate search) → predict → store
//
// The chosen model is registered under the series name so the HTTP API can
// list its candidates, and the series' gRPC health status follows the outcome
// of the last tick.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/lagfit/cmd/forecaster/config"
	"github.com/HatiCode/lagfit/cmd/forecaster/metrics"
	fmodels "github.com/HatiCode/lagfit/cmd/forecaster/models"
	"github.com/HatiCode/lagfit/pkg/adapters"
	"github.com/HatiCode/lagfit/pkg/models"
	"github.com/HatiCode/lagfit/pkg/storage"
)

// StatusSetter receives per-series serving status, e.g. a grpc health.Server.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// SeriesForecaster runs the build-and-predict loop for one series.
type SeriesForecaster struct {
	cfg      config.SeriesConfig
	adapter  adapters.Adapter
	store    storage.Store
	registry *models.Registry
	metrics  *metrics.Metrics
	health   StatusSetter
	logger   *slog.Logger
	now      func() time.Time
}

// NewSeriesForecaster creates a forecaster. metrics and health may be nil.
func NewSeriesForecaster(
	cfg config.SeriesConfig,
	adapter adapters.Adapter,
	store storage.Store,
	registry *models.Registry,
	m *metrics.Metrics,
	health StatusSetter,
	logger *slog.Logger,
) *SeriesForecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = models.NewRegistry()
	}

	return &SeriesForecaster{
		cfg:      cfg,
		adapter:  adapter,
		store:    store,
		registry: registry,
		metrics:  m,
		health:   health,
		logger:   logger.With("series", cfg.Name),
		now:      time.Now,
	}
}

// Name returns the series name.
func (f *SeriesForecaster) Name() string { return f.cfg.Name }

// Run ticks immediately and then every cfg.Interval until ctx is cancelled.
func (f *SeriesForecaster) Run(ctx context.Context) error {
	f.logger.Info("starting forecast loop",
		"interval", f.cfg.Interval,
		"window", f.cfg.Window,
		"family", f.cfg.Family,
	)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	if err := f.Tick(ctx); err != nil {
		f.logger.Error("initial forecast tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := f.Tick(ctx); err != nil {
				f.logger.Error("forecast tick failed", "error", err)
			}
		}
	}
}

// Tick performs one forecast cycle.
func (f *SeriesForecaster) Tick(ctx context.Context) error {
	start := f.now()

	series, err := f.collect(ctx)
	if err != nil {
		return f.fail("adapter", "collect_failed", fmt.Errorf("collect: %w", err))
	}

	model, err := fmodels.New(f.cfg, series, f.logger)
	if err != nil {
		return f.fail("model", "init_failed", fmt.Errorf("model: %w", err))
	}

	report, err := model.Build(ctx)
	if f.metrics != nil {
		f.metrics.RecordSearch(f.cfg.Name, model.Name(), report.Duration, report.Stats.Fitted, report.Stats.Failed)
	}
	if err != nil {
		return f.fail("model", "build_failed", fmt.Errorf("build: %w", err))
	}

	predictStart := f.now()
	pred, err := model.Predict(ctx, models.BestKey, f.cfg.Periods)
	if err != nil {
		return f.fail("model", "predict_failed", fmt.Errorf("predict: %w", err))
	}
	if f.metrics != nil {
		f.metrics.RecordPredict(f.cfg.Name, f.now().Sub(predictStart))
	}

	snapshot := f.snapshot(model, report, pred)
	if err := f.store.Put(ctx, snapshot); err != nil {
		return f.fail("store", "put_failed", fmt.Errorf("store: %w", err))
	}

	f.registry.Register(f.cfg.Name, model)
	f.setStatus(healthpb.HealthCheckResponse_SERVING)

	if f.metrics != nil {
		next := 0.0
		if n := len(pred.Reintegrated); n > 0 {
			next = pred.Reintegrated[n-1]
		}
		f.metrics.SetBest(f.cfg.Name, report.Best.Result.R2, model.Order(), next, snapshot.GeneratedAt)
	}

	f.logger.Info("forecast tick complete",
		"run_id", snapshot.RunID,
		"best", snapshot.Key,
		"r2", snapshot.R2,
		"integration_order", snapshot.IntegrationOrder,
		"candidates", snapshot.Candidates,
		"failed", snapshot.Failures,
		"total_ms", f.now().Sub(start).Milliseconds(),
	)
	return nil
}

// collect fetches the window and returns it newest-first.
func (f *SeriesForecaster) collect(ctx context.Context) ([]float64, error) {
	start := f.now()

	df, err := f.adapter.Collect(ctx, int(f.cfg.Window.Seconds()))
	if err != nil {
		return nil, err
	}
	series, err := df.Series()
	if err != nil {
		return nil, err
	}

	duration := f.now().Sub(start)
	if f.metrics != nil {
		f.metrics.RecordCollect(f.cfg.Name, f.adapter.Name(), duration)
	}

	f.logger.Debug("collected series",
		"adapter", f.adapter.Name(),
		"points", len(series),
		"window_seconds", int(f.cfg.Window.Seconds()),
		"duration_ms", duration.Milliseconds(),
	)
	return series, nil
}

func (f *SeriesForecaster) snapshot(model models.Model, report models.Report, pred models.Prediction) storage.Snapshot {
	top := model.Table().Top(f.cfg.TopCandidates)
	candidates := make([]storage.Candidate, len(top))
	for i, e := range top {
		candidates[i] = storage.Candidate{
			Key:          e.Key,
			R2:           e.Result.R2,
			Coefficients: e.Result.Coefficients,
			Intercept:    e.Result.Intercept,
		}
	}

	return storage.Snapshot{
		Series:           f.cfg.Name,
		Family:           model.Name(),
		Key:              pred.Key,
		RunID:            uuid.NewString(),
		GeneratedAt:      f.now().UTC(),
		StepSeconds:      int(f.cfg.Step.Seconds()),
		IntegrationOrder: model.Order(),
		R2:               report.Best.Result.R2,
		Candidates:       report.Stats.Fitted,
		Failures:         report.Stats.Failed,
		Periods:          pred.Periods,
		Forecast:         pred.Forecast,
		Reintegrated:     pred.Reintegrated,
		Top:              candidates,
	}
}

func (f *SeriesForecaster) fail(component, reason string, err error) error {
	if f.metrics != nil {
		f.metrics.RecordError(f.cfg.Name, component, reason)
	}
	f.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return err
}

func (f *SeriesForecaster) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	if f.health != nil {
		f.health.SetServingStatus(f.cfg.Name, status)
	}
}
