package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/lagfit/cmd/forecaster/config"
	"github.com/HatiCode/lagfit/cmd/forecaster/metrics"
	"github.com/HatiCode/lagfit/pkg/adapters"
	"github.com/HatiCode/lagfit/pkg/models"
	"github.com/HatiCode/lagfit/pkg/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticAdapter returns values (oldest-first) on every Collect.
type staticAdapter struct {
	values []float64
	err    error

	mu     sync.Mutex
	calls  int
	window int
}

func (a *staticAdapter) Name() string { return "static" }

func (a *staticAdapter) Collect(ctx context.Context, windowSeconds int) (*adapters.DataFrame, error) {
	a.mu.Lock()
	a.calls++
	a.window = windowSeconds
	a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}
	rows := make([]adapters.Row, len(a.values))
	for i, v := range a.values {
		rows[i] = adapters.Row{"value": v}
	}
	return &adapters.DataFrame{Rows: rows}, nil
}

func (a *staticAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordingHealth struct {
	mu       sync.Mutex
	statuses map[string]healthpb.HealthCheckResponse_ServingStatus
}

func (h *recordingHealth) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.statuses == nil {
		h.statuses = make(map[string]healthpb.HealthCheckResponse_ServingStatus)
	}
	h.statuses[service] = status
}

func (h *recordingHealth) get(service string) healthpb.HealthCheckResponse_ServingStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statuses[service]
}

type failingStore struct{ storage.Store }

func (failingStore) Put(context.Context, storage.Snapshot) error { return errors.New("disk full") }

func seriesConfig() config.SeriesConfig {
	return config.SeriesConfig{
		Name:          "api",
		Adapter:       "static",
		Step:          time.Minute,
		Interval:      time.Hour,
		Window:        10 * time.Minute,
		Family:        "autoreg",
		Lags:          3,
		Factors:       1,
		Periods:       3,
		Integrate:     "false",
		TopCandidates: 2,
	}
}

// halving is oldest-first 512, 256, ..., 1: x[t] = 0.5·x[t-1].
func halving() []float64 {
	out := make([]float64, 10)
	for i := range out {
		out[i] = math.Pow(2, float64(9-i))
	}
	return out
}

func TestNewSeriesForecaster(t *testing.T) {
	f := NewSeriesForecaster(seriesConfig(), &staticAdapter{}, storage.NewMemoryStore(), nil, nil, nil, nil)
	if f == nil {
		t.Fatal("NewSeriesForecaster() returned nil")
	}
	if f.Name() != "api" {
		t.Errorf("Name() = %q, want api", f.Name())
	}
	if f.registry == nil || f.logger == nil {
		t.Error("nil registry or logger not defaulted")
	}
}

func TestTick_StoresSnapshot(t *testing.T) {
	adapter := &staticAdapter{values: halving()}
	store := storage.NewMemoryStore()
	registry := models.NewRegistry()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	health := &recordingHealth{}

	f := NewSeriesForecaster(seriesConfig(), adapter, store, registry, m, health, discardLogger())

	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if adapter.window != 600 {
		t.Errorf("window = %d, want 600", adapter.window)
	}

	snap, found, err := store.GetLatest(context.Background(), "api")
	if err != nil || !found {
		t.Fatalf("GetLatest() = %v, %v", found, err)
	}
	if snap.Family != "autoreg" || snap.IntegrationOrder != 0 || snap.StepSeconds != 60 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.RunID == "" {
		t.Error("RunID not set")
	}
	if snap.Candidates != 3 || snap.Failures != 0 {
		t.Errorf("candidates = %d, failures = %d", snap.Candidates, snap.Failures)
	}
	if len(snap.Top) != 2 {
		t.Errorf("top = %d, want 2", len(snap.Top))
	}
	if snap.R2 < 0.999 {
		t.Errorf("R2 = %v, want ~1", snap.R2)
	}

	want := []float64{0.125, 0.25, 0.5}
	if len(snap.Reintegrated) != len(want) {
		t.Fatalf("reintegrated = %v, want %v", snap.Reintegrated, want)
	}
	for i := range want {
		if math.Abs(snap.Reintegrated[i]-want[i]) > 1e-9 {
			t.Errorf("reintegrated[%d] = %v, want %v", i, snap.Reintegrated[i], want[i])
		}
	}
	if snap.Periods[0] != "t+3" || snap.Periods[2] != "t+1" {
		t.Errorf("periods = %v", snap.Periods)
	}

	if _, ok := registry.Get("api"); !ok {
		t.Error("model not registered")
	}
	if health.get("api") != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v, want SERVING", health.get("api"))
	}
	if got := testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("api", "fitted")); got != 3 {
		t.Errorf("fitted metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.PredictedValue.WithLabelValues("api")); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("predicted value = %v, want 0.5", got)
	}
}

func TestTick_Failures(t *testing.T) {
	tests := []struct {
		name      string
		adapter   *staticAdapter
		store     storage.Store
		cfg       func(*config.SeriesConfig)
		component string
		reason    string
	}{
		{
			name:      "collect error",
			adapter:   &staticAdapter{err: errors.New("connection refused")},
			store:     storage.NewMemoryStore(),
			component: "adapter",
			reason:    "collect_failed",
		},
		{
			name:      "empty series",
			adapter:   &staticAdapter{},
			store:     storage.NewMemoryStore(),
			component: "adapter",
			reason:    "collect_failed",
		},
		{
			name:      "invalid model",
			adapter:   &staticAdapter{values: halving()},
			store:     storage.NewMemoryStore(),
			cfg:       func(c *config.SeriesConfig) { c.Factors = 0 },
			component: "model",
			reason:    "init_failed",
		},
		{
			name:      "no usable candidate",
			adapter:   &staticAdapter{values: []float64{5, 5, 5, 5, 5, 5, 5, 5}},
			store:     storage.NewMemoryStore(),
			component: "model",
			reason:    "build_failed",
		},
		{
			name:      "store error",
			adapter:   &staticAdapter{values: halving()},
			store:     failingStore{},
			component: "store",
			reason:    "put_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := seriesConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			m := metrics.New(prometheus.NewRegistry())
			health := &recordingHealth{}
			registry := models.NewRegistry()

			f := NewSeriesForecaster(cfg, tt.adapter, tt.store, registry, m, health, discardLogger())
			if err := f.Tick(context.Background()); err == nil {
				t.Fatal("expected error")
			}

			if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("api", tt.component, tt.reason)); got != 1 {
				t.Errorf("errors{%s,%s} = %v, want 1", tt.component, tt.reason, got)
			}
			if health.get("api") != healthpb.HealthCheckResponse_NOT_SERVING {
				t.Errorf("health = %v, want NOT_SERVING", health.get("api"))
			}
			if registry.Len() != 0 {
				t.Error("failed tick registered a model")
			}
		})
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	adapter := &staticAdapter{values: halving()}
	cfg := seriesConfig()
	cfg.Interval = 10 * time.Millisecond

	f := NewSeriesForecaster(cfg, adapter, storage.NewMemoryStore(), nil, nil, nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err := f.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if adapter.Calls() < 2 {
		t.Errorf("adapter called %d times, want at least 2", adapter.Calls())
	}
}

func TestRun_TickErrorsDoNotStopLoop(t *testing.T) {
	adapter := &staticAdapter{err: errors.New("down")}
	cfg := seriesConfig()
	cfg.Interval = 5 * time.Millisecond

	f := NewSeriesForecaster(cfg, adapter, storage.NewMemoryStore(), nil, nil, nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	if err := f.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v", err)
	}
	if adapter.Calls() < 2 {
		t.Errorf("adapter called %d times, want at least 2", adapter.Calls())
	}
}

func TestNewStore(t *testing.T) {
	store, closeFn, err := newStore(&config.Config{Storage: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("store = %T, want *storage.MemoryStore", store)
	}
	if err := closeFn(); err != nil {
		t.Error(err)
	}

	store, closeFn, err = newStore(&config.Config{Storage: "memory", MemoryTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("store = %T, want *storage.MemoryStore", store)
	}
	if err := closeFn(); err != nil {
		t.Error(err)
	}
}
