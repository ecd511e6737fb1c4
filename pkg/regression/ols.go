// Package regression provides the ordinary least squares fitter used to score
// candidate lag models.
//
// The fitter is a thin layer over gonum's QR factorisation. Rank-deficient or
// underdetermined systems are reported as ErrSingular instead of producing
// NaN or arbitrary coefficients, so callers can tell a failed fit apart from
// a genuinely poor one.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingular is returned when the design matrix does not have full column rank.
var ErrSingular = errors.New("regression: singular design matrix")

// DefaultRankTolerance is the relative tolerance applied to the diagonal of the
// R factor when checking for rank deficiency.
const DefaultRankTolerance = 1e-10

// Fit is the outcome of a least squares fit.
type Fit struct {
	// Coefficients holds one coefficient per design column, in column order.
	Coefficients []float64
	// Intercept is zero when the fit was run without an intercept.
	Intercept float64
	// R2 is the coefficient of determination on the training sample.
	R2 float64
	// RSS is the residual sum of squares.
	RSS float64
	// N is the number of observations.
	N int
}

// Fitter fits a linear model y ~ X (+ intercept).
type Fitter interface {
	Fit(x *mat.Dense, y []float64, intercept bool) (Fit, error)
}

// OLS is an ordinary least squares Fitter backed by a QR factorisation.
// The zero value is ready to use.
type OLS struct {
	// RankTolerance overrides DefaultRankTolerance when > 0.
	RankTolerance float64
}

// Fit solves min ||y - X b - c|| in the least squares sense.
//
// R2 is computed against the mean-centred total sum of squares even when no
// intercept is fitted, so it can be negative for a poor no-intercept fit. A
// constant target scores 1 on a perfect fit and 0 otherwise.
func (o OLS) Fit(x *mat.Dense, y []float64, intercept bool) (Fit, error) {
	design, err := o.design(x, y, intercept)
	if err != nil {
		return Fit{}, err
	}
	rows, cols := design.Dims()

	var qr mat.QR
	qr.Factorize(design)

	if err := o.checkRank(&qr, cols); err != nil {
		return Fit{}, err
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(rows, y)); err != nil {
		return Fit{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	_, k := x.Dims()
	fit := Fit{
		Coefficients: make([]float64, k),
		N:            rows,
	}
	for j := 0; j < k; j++ {
		fit.Coefficients[j] = beta.AtVec(j)
	}
	if intercept {
		fit.Intercept = beta.AtVec(k)
	}

	for _, c := range fit.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Fit{}, ErrSingular
		}
	}
	if math.IsNaN(fit.Intercept) || math.IsInf(fit.Intercept, 0) {
		return Fit{}, ErrSingular
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)

	mean := stat.Mean(y, nil)
	var tss float64
	for i, v := range y {
		r := v - fitted.AtVec(i)
		fit.RSS += r * r
		tss += (v - mean) * (v - mean)
	}

	switch {
	case tss > 0:
		fit.R2 = 1 - fit.RSS/tss
	case fit.RSS <= 1e-24*float64(rows):
		fit.R2 = 1
	default:
		fit.R2 = 0
	}

	return fit, nil
}

// StdErrors returns the standard error of every coefficient of fit, followed by
// the standard error of the intercept when intercept is true.
func (o OLS) StdErrors(x *mat.Dense, y []float64, fit Fit, intercept bool) ([]float64, error) {
	design, err := o.design(x, y, intercept)
	if err != nil {
		return nil, err
	}
	rows, cols := design.Dims()
	if rows <= cols {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrSingular, rows, cols)
	}

	var xtx, inv mat.Dense
	xtx.Mul(design.T(), design)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	sigma2 := fit.RSS / float64(rows-cols)
	se := make([]float64, cols)
	for j := range se {
		v := sigma2 * inv.At(j, j)
		if v < 0 {
			v = 0
		}
		se[j] = math.Sqrt(v)
	}
	return se, nil
}

// design validates the inputs and appends a column of ones when intercept is set.
func (o OLS) design(x *mat.Dense, y []float64, intercept bool) (*mat.Dense, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil design", ErrSingular)
	}
	rows, k := x.Dims()
	if k == 0 {
		return nil, fmt.Errorf("%w: empty design", ErrSingular)
	}
	if rows != len(y) {
		return nil, fmt.Errorf("regression: %d rows but %d targets", rows, len(y))
	}

	cols := k
	if intercept {
		cols++
	}
	if rows < cols {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrSingular, rows, cols)
	}
	if !intercept {
		return x, nil
	}

	design := mat.NewDense(rows, cols, nil)
	design.Slice(0, rows, 0, k).(*mat.Dense).Copy(x)
	for i := 0; i < rows; i++ {
		design.Set(i, k, 1)
	}
	return design, nil
}

// checkRank rejects factorisations whose R diagonal has a near-zero entry.
func (o OLS) checkRank(qr *mat.QR, cols int) error {
	tol := o.RankTolerance
	if tol <= 0 {
		tol = DefaultRankTolerance
	}

	var r mat.Dense
	qr.RTo(&r)

	maxDiag := 0.0
	for i := 0; i < cols; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(r.At(i, i)))
	}
	if maxDiag == 0 || math.IsNaN(maxDiag) {
		return ErrSingular
	}
	for i := 0; i < cols; i++ {
		if math.Abs(r.At(i, i)) <= tol*maxDiag {
			return fmt.Errorf("%w: column %d is linearly dependent", ErrSingular, i)
		}
	}
	return nil
}
