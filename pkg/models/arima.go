package models

import (
	"fmt"
	"iter"
)

// ARIMA searches every pairing of one AR lag and one MA window.
//
// For a maximum lag L the search space is:
//   - q (MA window): 2..L
//   - p (AR lag): 1..L
//
// giving L·(L-1) candidates keyed "AR<p>I<d>MA<q>". Each candidate regresses
// the stationary series on [series[i+p], mean(series[i+1:i+1+q])] without
// intercept.
type ARIMA struct {
	*lagModel
	lags int
}

// NewARIMA prepares an ARIMA search over series (newest-first).
//
// The series is forced to stationarity unless WithIntegrate(false) is given.
// Returns ErrInvalidLags if lags < 2.
func NewARIMA(series []float64, opts ...Option) (*ARIMA, error) {
	o := buildOptions(true, opts)
	if o.lags < 2 {
		return nil, fmt.Errorf("%w: arima needs lags >= 2, got %d", ErrInvalidLags, o.lags)
	}

	base, err := newLagModel("arima", series, o)
	if err != nil {
		return nil, err
	}
	m := &ARIMA{lagModel: base, lags: o.lags}
	base.fam = m
	return m, nil
}

// Lags returns the maximum lag searched.
func (m *ARIMA) Lags() int { return m.lags }

func (m *ARIMA) specs() iter.Seq[Spec] {
	return func(yield func(Spec) bool) {
		for q := 2; q <= m.lags; q++ {
			for p := 1; p <= m.lags; p++ {
				if !yield(NestedSpec{P: p, D: m.d, Q: q}) {
					return
				}
			}
		}
	}
}

func (m *ARIMA) resolve(key string) (string, error) {
	spec, err := DecodeNestedKey(key, m.d)
	if err != nil {
		return "", err
	}
	return spec.Key(), nil
}
