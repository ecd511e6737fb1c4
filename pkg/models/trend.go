package models

import (
	"fmt"
	"iter"
	"strings"
)

// Trend is a linear projection on the time index. It has a single candidate,
// TrendKey, and does not force stationarity unless WithIntegrate(true) is
// given.
type Trend struct {
	*lagModel
}

// NewTrend prepares a linear projection over series (newest-first).
func NewTrend(series []float64, opts ...Option) (*Trend, error) {
	o := buildOptions(false, opts)

	base, err := newLagModel("trend", series, o)
	if err != nil {
		return nil, err
	}
	m := &Trend{lagModel: base}
	base.fam = m
	return m, nil
}

func (m *Trend) specs() iter.Seq[Spec] {
	return func(yield func(Spec) bool) {
		yield(TrendSpec{})
	}
}

func (m *Trend) resolve(key string) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(key), TrendKey) {
		return "", fmt.Errorf("%w: %q", ErrBrokenKey, key)
	}
	return TrendKey, nil
}
