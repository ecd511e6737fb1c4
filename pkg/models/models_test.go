package models

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/lagfit/pkg/stationarity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// geometric returns a newest-first series with series[i] = 0.5*series[i+1].
func geometric(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(uint64(1) << uint(i))
	}
	return out
}

// arProcess returns a newest-first AR(1) process x_t = phi*x_{t-1} + e_t
// driven by deterministic noise.
func arProcess(n int, phi float64) []float64 {
	state := uint64(7)
	chron := make([]float64, n)
	prev := 0.0
	for i := range chron {
		state = state*6364136223846793005 + 1442695040888963407
		e := float64(state>>11)/float64(1<<53)*2 - 1
		prev = phi*prev + e
		chron[i] = prev
	}
	slices.Reverse(chron)
	return chron
}

func TestAutoReg_RecoversAR1(t *testing.T) {
	tests := []struct {
		name        string
		transformer stationarity.Transformer
	}{
		{name: "no differencing", transformer: stationarity.Fixed{Order: 0}},
		{name: "adf", transformer: stationarity.ADF{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewAutoReg(geometric(20),
				WithFactors(1),
				WithLags(5),
				WithTransformer(tt.transformer),
				WithLogger(testLogger()),
			)
			require.NoError(t, err)

			report, err := m.Build(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, 1.0, report.Best.Result.R2, 1e-9)

			ar1, ok := m.Table().Get("AR1")
			require.True(t, ok, "AR1 missing from table")
			require.Len(t, ar1.Result.Coefficients, 1)
			assert.InDelta(t, 0.5, ar1.Result.Coefficients[0], 1e-9)
			assert.InDelta(t, 1.0, ar1.Result.R2, 1e-9)
		})
	}
}

func TestAutoReg_Predict(t *testing.T) {
	m, err := NewAutoReg(geometric(20),
		WithFactors(1),
		WithLags(3),
		WithTransformer(stationarity.Fixed{Order: 0}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	_, err = m.Build(context.Background())
	require.NoError(t, err)

	p, err := m.Predict(context.Background(), "AR1", 3)
	require.NoError(t, err)

	assert.Equal(t, "AR1", p.Key)
	assert.Equal(t, []string{"t+3", "t+2", "t+1"}, p.Periods)
	require.Len(t, p.Forecast, 3)
	assert.InDeltaSlice(t, []float64{0.125, 0.25, 0.5}, p.Forecast, 1e-6)
	assert.InDeltaSlice(t, p.Forecast, p.Reintegrated, 1e-12)

	last, ok := m.LastPrediction()
	require.True(t, ok)
	assert.Equal(t, p, last)
}

func TestCascade_DegenerateCandidateDoesNotBlockOthers(t *testing.T) {
	series := []float64{5, 3, 8, 2, 0, 0, 0, 0, 0, 0, 0, 0}

	m, err := NewAutoReg(series,
		WithFactors(1),
		WithLags(6),
		WithTransformer(stationarity.Fixed{Order: 0}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)

	report, err := m.Build(context.Background())
	require.NoError(t, err)

	// Lags 4..6 only see the zero tail.
	assert.Equal(t, 6, report.Stats.Submitted)
	assert.Equal(t, 3, report.Stats.Fitted)
	assert.Equal(t, 3, report.Stats.Failed)
	assert.Equal(t, 3, m.Table().Len())

	for _, key := range []string{"AR4", "AR5", "AR6"} {
		_, ok := m.Table().Get(key)
		assert.False(t, ok, "%s should be absent", key)
	}
	assert.Contains(t, []string{"AR1", "AR2", "AR3"}, report.Best.Key)
	assert.Greater(t, report.Best.Result.R2, 0.0)
}

func TestCascade_InvalidFactors(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := NewAutoReg(geometric(20), WithFactors(n))
		if !errors.Is(err, ErrInvalidFactors) {
			t.Errorf("NewAutoReg(factors=%d) error = %v, want ErrInvalidFactors", n, err)
		}
		_, err = NewMovingAvg(geometric(20), WithFactors(n))
		if !errors.Is(err, ErrInvalidFactors) {
			t.Errorf("NewMovingAvg(factors=%d) error = %v, want ErrInvalidFactors", n, err)
		}
	}
}

func TestMovingAvg_Build(t *testing.T) {
	m, err := NewMovingAvg(arProcess(80, 0.6),
		WithFactors(2),
		WithLags(4),
		WithWorkers(3),
		WithTransformer(stationarity.Fixed{Order: 0}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	assert.Equal(t, 9, m.Candidates())

	report, err := m.Build(context.Background())
	require.NoError(t, err)

	// Tuples such as MA2MA2 repeat a column and cannot be fitted.
	assert.Equal(t, 9, report.Stats.Submitted)
	assert.Equal(t, report.Stats.Fitted+report.Stats.Failed, 9)
	assert.Equal(t, report.Stats.Fitted, m.Table().Len())
	assert.Greater(t, report.Stats.Failed, 0)

	for _, e := range m.Table().Entries() {
		assert.True(t, strings.HasPrefix(e.Key, "MA"), e.Key)
	}
	assert.True(t, strings.HasPrefix(report.Best.Key, "MA"))

	p, err := m.Predict(context.Background(), BestKey, 5)
	require.NoError(t, err)
	assert.Len(t, p.Forecast, 5)
}

func TestARIMA_RecordsEveryPair(t *testing.T) {
	const lags = 5
	m, err := NewARIMA(arProcess(80, 0.6),
		WithLags(lags),
		WithTransformer(stationarity.Fixed{Order: 0}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)

	report, err := m.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, lags*(lags-1), report.Stats.Submitted)
	assert.Equal(t, lags*(lags-1), m.Table().Len())
	assert.Equal(t, 0, report.Stats.Failed)

	for q := 2; q <= lags; q++ {
		for p := 1; p <= lags; p++ {
			key := NestedSpec{P: p, D: 0, Q: q}.Key()
			e, ok := m.Table().Get(key)
			require.True(t, ok, "missing %s", key)
			assert.Len(t, e.Result.Coefficients, 2)
			assert.Zero(t, e.Result.Intercept)
			assert.InDelta(t, e.Result.R2*e.Result.R2, e.Result.Score, 1e-12)
		}
	}

	best, err := m.Table().Best()
	require.NoError(t, err)
	assert.Equal(t, report.Best.Key, best.Key)
}

func TestARIMA_InsertionOrderIsDeterministic(t *testing.T) {
	series := arProcess(60, 0.5)

	var first []string
	for run := range 3 {
		m, err := NewARIMA(series,
			WithLags(4),
			WithWorkers(run+2),
			WithTransformer(stationarity.Fixed{Order: 0}),
			WithLogger(testLogger()),
		)
		require.NoError(t, err)
		_, err = m.Build(context.Background())
		require.NoError(t, err)

		var keys []string
		for _, e := range m.Table().Entries() {
			keys = append(keys, e.Key)
		}
		if run == 0 {
			first = keys
			assert.Equal(t, "AR1I0MA2", keys[0])
			continue
		}
		assert.Equal(t, first, keys)
	}
}

func TestARIMA_PredictReintegrates(t *testing.T) {
	// Random walk around a drift: needs one difference.
	raw := arProcess(60, 0.4)
	level := 100.0
	walk := make([]float64, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		level += raw[i]
		walk[i] = level
	}

	m, err := NewARIMA(walk,
		WithLags(4),
		WithTransformer(stationarity.Fixed{Order: 1}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	require.Equal(t, 1, m.Order())

	_, err = m.Build(context.Background())
	require.NoError(t, err)

	const periods = 6
	p, err := m.Predict(context.Background(), BestKey, periods)
	require.NoError(t, err)
	require.Len(t, p.Forecast, periods)
	require.Len(t, p.Reintegrated, periods)
	assert.Contains(t, p.Key, "I1")

	// Differencing the re-integrated forecast on top of the history gives
	// back the stationary forecast.
	full := append(slices.Clone(p.Reintegrated), walk...)
	diffed := stationarity.DifferenceN(full, 1)
	assert.InDeltaSlice(t, p.Forecast, diffed[:periods], 1e-9)
}

func TestARIMA_SecondOrderNamedKey(t *testing.T) {
	series := make([]float64, 40)
	noise := arProcess(40, 0.3)
	for i := range series {
		x := float64(len(series) - i)
		series[i] = 0.5*x*x + noise[i]
	}

	m, err := NewARIMA(series,
		WithLags(3),
		WithTransformer(stationarity.Fixed{Order: 2}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)

	// Twice-differenced noise has no usable no-intercept candidate, but the
	// table is still filled and named keys stay predictable.
	_, err = m.Build(context.Background())
	require.ErrorIs(t, err, ErrNoUsableModel)
	assert.Equal(t, 6, m.Table().Len())
	for _, e := range m.Table().Entries() {
		assert.LessOrEqual(t, e.Result.R2, 0.0, e.Key)
	}

	_, err = m.Predict(context.Background(), BestKey, 4)
	assert.Error(t, err)

	p, err := m.Predict(context.Background(), "AR1MA2", 4)
	require.NoError(t, err)
	assert.Equal(t, "AR1I2MA2", p.Key)

	full := append(slices.Clone(p.Reintegrated), series...)
	diffed := stationarity.DifferenceN(full, 2)
	assert.InDeltaSlice(t, p.Forecast, diffed[:4], 1e-6)
}

func TestModel_PredictErrors(t *testing.T) {
	newModel := func(t *testing.T) *ARIMA {
		t.Helper()
		m, err := NewARIMA(arProcess(50, 0.6),
			WithLags(3),
			WithTransformer(stationarity.Fixed{Order: 0}),
			WithLogger(testLogger()),
		)
		require.NoError(t, err)
		return m
	}

	t.Run("best before build", func(t *testing.T) {
		m := newModel(t)
		for _, key := range []string{BestKey, ""} {
			_, err := m.Predict(context.Background(), key, 3)
			if !errors.Is(err, ErrNotBuilt) {
				t.Errorf("Predict(%q) error = %v, want ErrNotBuilt", key, err)
			}
		}
		_, ok := m.LastPrediction()
		assert.False(t, ok)
	})

	t.Run("named key before build", func(t *testing.T) {
		m := newModel(t)
		_, err := m.Predict(context.Background(), "AR1MA2", 3)
		if !errors.Is(err, ErrModelNotFound) {
			t.Errorf("error = %v, want ErrModelNotFound", err)
		}
	})

	m := newModel(t)
	_, err := m.Build(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		periods int
		wantErr error
	}{
		{name: "broken key", key: "garbage", periods: 3, wantErr: ErrBrokenKey},
		{name: "cascade key on arima", key: "AR1AR2", periods: 3, wantErr: ErrBrokenKey},
		{name: "outside searched range", key: "AR9MA2", periods: 3, wantErr: ErrModelNotFound},
		{name: "zero periods", key: BestKey, periods: 0, wantErr: ErrInvalidPeriods},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Predict(context.Background(), tt.key, tt.periods)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Predict(%q) error = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}

	// Failed lookups leave the table alone.
	assert.Equal(t, 6, m.Table().Len())

	t.Run("key without integration marker", func(t *testing.T) {
		p, err := m.Predict(context.Background(), "AR2MA3", 2)
		require.NoError(t, err)
		assert.Equal(t, "AR2I0MA3", p.Key)
	})
}

func TestModel_BuildCancelled(t *testing.T) {
	m, err := NewARIMA(arProcess(50, 0.6),
		WithLags(6),
		WithTransformer(stationarity.Fixed{Order: 0}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Build(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build() error = %v, want context.Canceled", err)
	}
	assert.Equal(t, 0, m.Table().Len())

	_, err = m.Predict(context.Background(), BestKey, 1)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestModel_PredictCancelled(t *testing.T) {
	m, err := NewTrend([]float64{5, 4, 3, 2, 1}, WithLogger(testLogger()))
	require.NoError(t, err)
	_, err = m.Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Predict(ctx, BestKey, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModel_ConcurrentPredict(t *testing.T) {
	m, err := NewARIMA(arProcess(60, 0.6),
		WithLags(4),
		WithTransformer(stationarity.Fixed{Order: 0}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	_, err = m.Build(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Predict(context.Background(), BestKey, 10); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Predict() error = %v", err)
	}
}

func TestTrend(t *testing.T) {
	// Grows by 2 per step; the newest value is 100.
	series := make([]float64, 10)
	for i := range series {
		series[i] = 100 - 2*float64(i)
	}

	m, err := NewTrend(series, WithLogger(testLogger()))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Order())

	report, err := m.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrendKey, report.Best.Key)
	assert.InDelta(t, 1.0, report.Best.Result.R2, 1e-9)
	assert.InDelta(t, 2.0, report.Best.Result.Coefficients[0], 1e-9)
	assert.InDelta(t, 80.0, report.Best.Result.Intercept, 1e-9)

	p, err := m.Predict(context.Background(), "trend", 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{106, 104, 102}, p.Forecast, 1e-9)
	assert.InDeltaSlice(t, []float64{106, 104, 102}, p.Reintegrated, 1e-9)

	_, err = m.Predict(context.Background(), "AR1", 3)
	assert.ErrorIs(t, err, ErrBrokenKey)
}

func TestTrend_Integrated(t *testing.T) {
	// Quadratic growth: the first difference is linear.
	series := make([]float64, 12)
	for i := range series {
		x := float64(len(series) - i)
		series[i] = x * x
	}

	m, err := NewTrend(series,
		WithIntegrate(true),
		WithTransformer(stationarity.Fixed{Order: 1}),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	require.Equal(t, 1, m.Order())

	_, err = m.Build(context.Background())
	require.NoError(t, err)

	p, err := m.Predict(context.Background(), BestKey, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{196, 169}, p.Reintegrated, 1e-6)
}

func TestNew(t *testing.T) {
	series := arProcess(40, 0.5)
	for _, family := range Families {
		t.Run(family, func(t *testing.T) {
			m, err := New(family, series, WithLags(3), WithFactors(1), WithLogger(testLogger()))
			require.NoError(t, err)
			assert.Equal(t, family, m.Name())
		})
	}

	_, err := New("prophet", series)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	series := arProcess(40, 0.5)

	a, err := NewTrend(series)
	require.NoError(t, err)
	b, err := NewAutoReg(series, WithFactors(1), WithLags(2))
	require.NoError(t, err)

	reg.Register("requests", a)
	reg.Register("latency", b)

	assert.Equal(t, []string{"latency", "requests"}, reg.Names())
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Get("requests")
	require.True(t, ok)
	assert.Equal(t, "trend", got.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestPeriodLabels(t *testing.T) {
	assert.Equal(t, []string{"t+4", "t+3", "t+2", "t+1"}, PeriodLabels(4))
	assert.Equal(t, []string{"t+1"}, PeriodLabels(1))
}
