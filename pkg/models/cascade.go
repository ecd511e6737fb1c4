package models

import (
	"fmt"
	"iter"

	"github.com/HatiCode/lagfit/pkg/features"
)

// Cascade searches every ordered tuple of n factors of a single kind.
//
// For AutoReg each factor is a lagged value, for MovingAvg a trailing mean.
// Lags range over [kind.MinLag(), lags], so n factors give
// (lags-kind.MinLag()+1)^n candidates keyed "AR1AR2AR3" or "MA2MA3".
// Candidates are fitted with intercept.
type Cascade struct {
	*lagModel
	kind    features.Kind
	lags    int
	factors int
}

// NewAutoReg prepares a cascade of autoregressive factors.
func NewAutoReg(series []float64, opts ...Option) (*Cascade, error) {
	return newCascade("autoreg", features.AR, series, opts)
}

// NewMovingAvg prepares a cascade of moving-average factors.
func NewMovingAvg(series []float64, opts ...Option) (*Cascade, error) {
	return newCascade("movingavg", features.MA, series, opts)
}

func newCascade(name string, kind features.Kind, series []float64, opts []Option) (*Cascade, error) {
	o := buildOptions(true, opts)
	if o.factors < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFactors, o.factors)
	}
	if o.lags < kind.MinLag() {
		return nil, fmt.Errorf("%w: %s needs lags >= %d, got %d", ErrInvalidLags, name, kind.MinLag(), o.lags)
	}

	base, err := newLagModel(name, series, o)
	if err != nil {
		return nil, err
	}
	m := &Cascade{lagModel: base, kind: kind, lags: o.lags, factors: o.factors}
	base.fam = m
	return m, nil
}

// Kind returns the factor kind.
func (m *Cascade) Kind() features.Kind { return m.kind }

// Factors returns the number of factors per candidate.
func (m *Cascade) Factors() int { return m.factors }

// Candidates returns the number of candidates Build evaluates.
func (m *Cascade) Candidates() int {
	return features.CascadeSize(m.factors, m.kind, m.lags)
}

func (m *Cascade) specs() iter.Seq[Spec] {
	return func(yield func(Spec) bool) {
		for lags := range features.CascadeLags(m.factors, m.kind, m.lags) {
			if !yield(CascadeSpec{Kind: m.kind, Lags: lags}) {
				return
			}
		}
	}
}

func (m *Cascade) resolve(key string) (string, error) {
	spec, err := DecodeCascadeKey(key)
	if err != nil {
		return "", err
	}
	if spec.Kind != m.kind {
		return "", fmt.Errorf("%w: %q is not a %s key", ErrBrokenKey, key, m.kind)
	}
	return spec.Key(), nil
}
