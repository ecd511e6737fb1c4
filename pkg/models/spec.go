package models

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/lagfit/pkg/features"
)

// Spec is one candidate lag structure.
type Spec interface {
	// Key returns the external name of the candidate.
	Key() string
	// Design builds the feature matrix and target from a stationary series.
	Design(series []float64) (*mat.Dense, []float64, error)
	// Intercept reports whether the fit includes an intercept.
	Intercept() bool
	// Next returns the one-step-ahead value for a working series.
	Next(series []float64, r Result) float64
}

// NestedSpec is an ARIMA candidate: one AR lag p and one MA window q on a
// series differenced d times. It is fitted without intercept.
type NestedSpec struct {
	P, D, Q int
}

// Key returns "AR<p>I<d>MA<q>".
func (s NestedSpec) Key() string {
	return fmt.Sprintf("AR%dI%dMA%d", s.P, s.D, s.Q)
}

// Intercept implements Spec.
func (s NestedSpec) Intercept() bool { return false }

// Design implements Spec. Columns are [AR lag p, MA window q].
func (s NestedSpec) Design(series []float64) (*mat.Dense, []float64, error) {
	ar := features.ARLag(series, s.P)
	ma := features.MovingAverage(series, s.Q)
	return features.Align(series, features.Block{ar}, features.Block{ma})
}

// Next implements Spec.
func (s NestedSpec) Next(series []float64, r Result) float64 {
	return r.Coefficients[0]*series[s.P-1] + r.Coefficients[1]*stat.Mean(series[:s.Q], nil)
}

// CascadeSpec is a cascade candidate: one factor of Kind per lag, fitted with
// intercept.
type CascadeSpec struct {
	Kind features.Kind
	Lags []int
}

// Key returns the concatenated factors, e.g. "AR1AR2AR3".
func (s CascadeSpec) Key() string {
	var b strings.Builder
	for _, l := range s.Lags {
		b.WriteString(s.Kind.String())
		b.WriteString(strconv.Itoa(l))
	}
	return b.String()
}

// Intercept implements Spec.
func (s CascadeSpec) Intercept() bool { return true }

// Design implements Spec.
func (s CascadeSpec) Design(series []float64) (*mat.Dense, []float64, error) {
	return features.Cascade(series, s.Kind, s.Lags)
}

// Next implements Spec.
func (s CascadeSpec) Next(series []float64, r Result) float64 {
	next := r.Intercept
	for i, l := range s.Lags {
		switch s.Kind {
		case features.AR:
			next += r.Coefficients[i] * series[l-1]
		case features.MA:
			next += r.Coefficients[i] * stat.Mean(series[:l], nil)
		}
	}
	return next
}

// TrendKey is the key of the linear projection candidate.
const TrendKey = "TREND"

// TrendSpec regresses the series on its time index. The oldest observation
// has index 1 and the newest has index len(series).
type TrendSpec struct{}

// Key implements Spec.
func (TrendSpec) Key() string { return TrendKey }

// Intercept implements Spec.
func (TrendSpec) Intercept() bool { return true }

// Design implements Spec.
func (TrendSpec) Design(series []float64) (*mat.Dense, []float64, error) {
	n := len(series)
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty series", features.ErrMisaligned)
	}
	index := make([]float64, n)
	for i := range index {
		index[i] = float64(n - i)
	}
	return features.Align(series, features.Block{index})
}

// Next implements Spec.
func (TrendSpec) Next(series []float64, r Result) float64 {
	return r.Intercept + r.Coefficients[0]*float64(len(series)+1)
}
