// Package models provides the lag-model families that are fitted by
// exhaustive search and used for forecasting.
//
// Every family follows the same lifecycle:
//  1. The constructor copies the series and forces it to stationarity
//  2. Build enumerates every candidate lag structure, fits each one with OLS
//     and records the result in the model's Table
//  3. Predict produces an iterative forecast from the best or a named
//     candidate and re-integrates it to the original scale
//
// Series are newest-first: index 0 is the most recent observation.
package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/HatiCode/lagfit/pkg/regression"
	"github.com/HatiCode/lagfit/pkg/stationarity"
)

// BestKey selects the best candidate in Predict.
const BestKey = "best"

const (
	// DefaultLags is the default maximum lag searched.
	DefaultLags = 30
	// DefaultFactors is the default number of cascade factors.
	DefaultFactors = 3
	// DefaultPeriods is the default forecast horizon used by callers.
	DefaultPeriods = 30
)

var (
	// ErrInvalidFactors is returned for a cascade factor count below one.
	ErrInvalidFactors = errors.New("models: n_factors must be >= 1")
	// ErrInvalidLags is returned for a maximum lag the family cannot search.
	ErrInvalidLags = errors.New("models: invalid lags")
	// ErrInvalidPeriods is returned when fewer than one period is requested.
	ErrInvalidPeriods = errors.New("models: periods must be >= 1")
	// ErrNoUsableModel is returned when no candidate has a positive R².
	ErrNoUsableModel = errors.New("models: no usable model")
	// ErrBrokenKey is returned for a model key that cannot be parsed.
	ErrBrokenKey = errors.New("models: broken key")
	// ErrModelNotFound is returned when a named key is absent from the table.
	ErrModelNotFound = errors.New("models: model not found")
	// ErrNotBuilt is returned by Predict("best") before Build.
	ErrNotBuilt = errors.New("models: model not built")
)

// Model is a lag-model family.
//
// Build and Predict may be called from different goroutines; a Build running
// concurrently with Predict only becomes visible to Predict once it completes.
type Model interface {
	// Name returns the family name, e.g. "arima".
	Name() string
	// Order returns the integration order applied at construction.
	Order() int
	// Build runs the candidate search and returns the best candidate.
	Build(ctx context.Context) (Report, error)
	// Predict forecasts periods steps ahead with the best (key "best" or "")
	// or a named candidate.
	Predict(ctx context.Context, key string, periods int) (Prediction, error)
	// Table returns the candidate table.
	Table() *Table
	// LastPrediction returns the most recent successful Predict result.
	LastPrediction() (Prediction, bool)
}

// Prediction is a forecast produced by Predict. All slices are newest-first:
// index 0 is t+n and the last index is t+1.
type Prediction struct {
	Key          string    `json:"key"`
	Periods      []string  `json:"periods"`
	Forecast     []float64 `json:"forecast"`
	Reintegrated []float64 `json:"reintegrated"`
}

// Report summarises one Build.
type Report struct {
	Best     Entry
	Stats    SearchStats
	Duration time.Duration
}

// Option configures a model.
type Option func(*options)

type options struct {
	lags        int
	factors     int
	workers     int
	fitter      regression.Fitter
	transformer stationarity.Transformer
	integrate   *bool
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		lags:        DefaultLags,
		factors:     DefaultFactors,
		workers:     runtime.GOMAXPROCS(0),
		fitter:      regression.OLS{},
		transformer: stationarity.ADF{},
		logger:      slog.Default(),
	}
}

// WithLags sets the maximum lag searched.
func WithLags(lags int) Option {
	return func(o *options) {
		o.lags = lags
	}
}

// WithFactors sets the number of cascade factors.
func WithFactors(n int) Option {
	return func(o *options) {
		o.factors = n
	}
}

// WithWorkers bounds the number of concurrent fits. Values below one fall
// back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithFitter replaces the OLS fitter.
func WithFitter(f regression.Fitter) Option {
	return func(o *options) {
		if f != nil {
			o.fitter = f
		}
	}
}

// WithTransformer replaces the stationarity transform.
func WithTransformer(t stationarity.Transformer) Option {
	return func(o *options) {
		if t != nil {
			o.transformer = t
		}
	}
}

// WithIntegrate controls whether the series is forced to stationarity before
// the search. Families other than Trend integrate by default.
func WithIntegrate(integrate bool) Option {
	return func(o *options) {
		o.integrate = &integrate
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(integrateByDefault bool, opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.integrate == nil {
		o.integrate = &integrateByDefault
	}
	return o
}

// prepare copies series and applies the configured transform.
func prepare(series []float64, o options) (raw []float64, stationary []float64, d int, err error) {
	if len(series) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: empty series", stationarity.ErrTooShort)
	}
	raw = append([]float64(nil), series...)

	if !*o.integrate {
		return raw, append([]float64(nil), raw...), 0, nil
	}

	d, stationary, err = o.transformer.ForceStationary(raw)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("forcing stationarity: %w", err)
	}
	return raw, stationary, d, nil
}
