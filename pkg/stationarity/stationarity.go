// Package stationarity forces a series to stationarity by repeated first
// differencing and provides the helpers needed to undo it.
//
// All series are newest-first: index 0 is the most recent observation.
//
// Two transformers are provided:
//   - ADF: differences until an Augmented Dickey-Fuller regression rejects a
//     unit root, the series becomes constant, or MaxOrder is reached
//   - Fixed: always differences a fixed number of times
//
// Each differencing step shortens the series by exactly one element.
package stationarity

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/lagfit/pkg/regression"
)

// ErrTooShort is returned when a series cannot be differenced as requested.
var ErrTooShort = errors.New("stationarity: series too short")

const (
	// DefaultMaxOrder caps the number of differencing steps.
	DefaultMaxOrder = 2

	// DefaultMinLength is the shortest series the ADF transformer will produce.
	DefaultMinLength = 8

	// DefaultCriticalValue is the 5% ADF critical value for a regression with a
	// constant and no trend.
	DefaultCriticalValue = -2.86
)

// Transformer turns a raw series into a stationary one.
//
// ForceStationary returns the number of differencing steps applied and the
// differenced series. The input is never modified.
type Transformer interface {
	ForceStationary(series []float64) (int, []float64, error)
}

// ADF differences a series until an Augmented Dickey-Fuller test rejects the
// unit-root hypothesis. The zero value uses the package defaults.
type ADF struct {
	// MaxOrder is the maximum number of differences (default 2).
	MaxOrder int
	// MinLength stops differencing before the series gets shorter than this.
	MinLength int
	// CriticalValue is the rejection threshold for the t-statistic.
	CriticalValue float64
	// Fitter solves the test regression; defaults to regression.OLS.
	Fitter *regression.OLS
}

// ForceStationary implements Transformer.
func (a ADF) ForceStationary(series []float64) (int, []float64, error) {
	if len(series) < 2 {
		return 0, nil, fmt.Errorf("%w: got %d points", ErrTooShort, len(series))
	}

	maxOrder := a.MaxOrder
	if maxOrder <= 0 {
		maxOrder = DefaultMaxOrder
	}
	minLength := a.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	current := make([]float64, len(series))
	copy(current, series)

	d := 0
	for d < maxOrder {
		if a.IsStationary(current) {
			return d, current, nil
		}
		if len(current)-1 < minLength {
			break
		}
		current = Difference(current)
		d++
	}
	return d, current, nil
}

// IsStationary reports whether series looks stationary.
//
// A constant series is stationary. Otherwise the ADF regression
//
//	Δy_t = c + γ·y_{t-1} + Σ_{j=1..L} φ_j·Δy_{t-j} + ε_t
//
// is fitted and the unit root is rejected when the t-statistic of γ is below
// CriticalValue. L is the lag count with the lowest AIC among 0..Lmax, where
// Lmax = floor(12·(n/100)^¼), all compared on the same sample. A singular
// regression or a non-finite statistic never rejects.
func (a ADF) IsStationary(series []float64) bool {
	n := len(series)
	if n < 3 {
		return true
	}

	mean, variance := stat.MeanVariance(series, nil)
	if variance <= 1e-12*math.Max(1, mean*mean) {
		return true
	}

	tStat, ok := a.statistic(series)
	if !ok {
		return false
	}

	critical := a.CriticalValue
	if critical == 0 {
		critical = DefaultCriticalValue
	}
	return tStat < critical
}

func (a ADF) fitter() regression.OLS {
	if a.Fitter != nil {
		return *a.Fitter
	}
	return regression.OLS{}
}

// maxLag returns the largest lag count that still leaves enough rows to fit.
func maxLag(n int) int {
	lags := int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
	for lags > 0 && n-1-lags < lags+3 {
		lags--
	}
	return lags
}

// design builds the ADF regression with lags lagged differences, using the
// rows from skip onwards. y and dy are chronological.
func design(y, dy []float64, lags, skip int) (*mat.Dense, []float64) {
	rows := len(dy) - skip
	x := mat.NewDense(rows, 1+lags, nil)
	target := make([]float64, rows)
	for i := 0; i < rows; i++ {
		t := i + skip // index into dy
		target[i] = dy[t]
		x.Set(i, 0, y[t])
		for j := 1; j <= lags; j++ {
			x.Set(i, j, dy[t-j])
		}
	}
	return x, target
}

// selectLag picks the lag count with the lowest AIC. Every candidate is fitted
// on the rows left after dropping the largest lag.
func (a ADF) selectLag(y, dy []float64, top int) (int, bool) {
	ols := a.fitter()
	best, bestAIC, found := 0, math.Inf(1), false
	for lags := 0; lags <= top; lags++ {
		x, target := design(y, dy, lags, top)
		rows, cols := x.Dims()
		if rows < cols+2 {
			break
		}
		fit, err := ols.Fit(x, target, true)
		if err != nil {
			continue
		}
		aic := float64(rows)*math.Log(fit.RSS/float64(rows)) + 2*float64(cols+1)
		if !found || aic < bestAIC {
			best, bestAIC, found = lags, aic, true
		}
	}
	return best, found
}

// statistic computes the ADF t-statistic for γ.
func (a ADF) statistic(series []float64) (float64, bool) {
	n := len(series)

	// The regression runs in chronological order.
	y := make([]float64, n)
	for i, v := range series {
		y[n-1-i] = v
	}
	dy := make([]float64, n-1)
	for t := 1; t < n; t++ {
		dy[t-1] = y[t] - y[t-1]
	}

	lags, ok := a.selectLag(y, dy, maxLag(n))
	if !ok {
		return 0, false
	}

	x, target := design(y, dy, lags, lags)
	rows, cols := x.Dims()
	if rows < cols+2 {
		return 0, false
	}

	ols := a.fitter()
	fit, err := ols.Fit(x, target, true)
	if err != nil {
		return 0, false
	}
	gamma := fit.Coefficients[0]

	var scale float64
	for _, v := range target {
		scale += v * v
	}
	if fit.RSS <= 1e-18*scale {
		// Perfect fit: the sign of γ decides.
		if gamma < -1e-8 {
			return math.Inf(-1), true
		}
		return 0, false
	}

	se, err := ols.StdErrors(x, target, fit, true)
	if err != nil || se[0] == 0 {
		return 0, false
	}

	tStat := gamma / se[0]
	if math.IsNaN(tStat) || math.IsInf(tStat, 1) {
		return 0, false
	}
	return tStat, true
}

// Fixed differences a series exactly Order times.
type Fixed struct {
	Order int
}

// ForceStationary implements Transformer.
func (f Fixed) ForceStationary(series []float64) (int, []float64, error) {
	if f.Order < 0 {
		return 0, nil, fmt.Errorf("stationarity: negative order %d", f.Order)
	}
	if len(series) <= f.Order {
		return 0, nil, fmt.Errorf("%w: %d points cannot be differenced %d times", ErrTooShort, len(series), f.Order)
	}
	return f.Order, DifferenceN(series, f.Order), nil
}
