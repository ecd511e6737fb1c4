package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"
)

// family is the part of a Model that differs between families.
type family interface {
	specs() iter.Seq[Spec]
	resolve(key string) (string, error)
}

// lagModel implements Model on top of a family.
type lagModel struct {
	name       string
	fam        family
	raw        []float64
	stationary []float64
	d          int
	opts       options
	log        *slog.Logger
	table      *Table

	mu    sync.RWMutex
	built bool
	last  *Prediction
}

func newLagModel(name string, series []float64, o options) (*lagModel, error) {
	raw, stationary, d, err := prepare(series, o)
	if err != nil {
		return nil, err
	}
	return &lagModel{
		name:       name,
		raw:        raw,
		stationary: stationary,
		d:          d,
		opts:       o,
		log:        o.logger.With("model", name),
		table:      NewTable(),
	}, nil
}

// Name implements Model.
func (m *lagModel) Name() string { return m.name }

// Order implements Model.
func (m *lagModel) Order() int { return m.d }

// Table implements Model.
func (m *lagModel) Table() *Table { return m.table }

// Series returns a copy of the stationary series the search runs on.
func (m *lagModel) Series() []float64 {
	return append([]float64(nil), m.stationary...)
}

// Build implements Model.
//
// The search results are merged into the table only after every candidate
// has been evaluated. A cancelled build leaves the table untouched.
func (m *lagModel) Build(ctx context.Context) (Report, error) {
	start := time.Now()

	entries, stats, err := Search(ctx, m.stationary, m.fam.specs(), m.opts.fitter, m.opts.workers, m.log)
	if err != nil {
		return Report{Stats: stats}, err
	}

	for _, e := range entries {
		m.table.Put(e)
	}

	m.mu.Lock()
	m.built = true
	m.mu.Unlock()

	report := Report{Stats: stats, Duration: time.Since(start)}
	best, err := m.table.Best()
	if err != nil {
		m.log.Warn("no usable candidate", "submitted", stats.Submitted, "failed", stats.Failed)
		return report, err
	}
	report.Best = best

	m.log.Info("build complete",
		"best", best.Key,
		"r2", best.Result.R2,
		"integration_order", m.d,
		"candidates", stats.Fitted,
		"failed", stats.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// Predict implements Model.
//
// A named key is resolved against the table only; candidates that were never
// fitted are reported as ErrModelNotFound.
func (m *lagModel) Predict(ctx context.Context, key string, periods int) (Prediction, error) {
	if periods < 1 {
		return Prediction{}, fmt.Errorf("%w: got %d", ErrInvalidPeriods, periods)
	}

	entry, err := m.lookup(key)
	if err != nil {
		return Prediction{}, err
	}

	p, err := forecast(ctx, entry, m.stationary, m.raw, m.d, periods)
	if err != nil {
		return Prediction{}, err
	}

	m.mu.Lock()
	m.last = &p
	m.mu.Unlock()

	return p, nil
}

// LastPrediction implements Model.
func (m *lagModel) LastPrediction() (Prediction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.last == nil {
		return Prediction{}, false
	}
	return *m.last, true
}

func (m *lagModel) lookup(key string) (Entry, error) {
	if key == "" || key == BestKey {
		m.mu.RLock()
		built := m.built
		m.mu.RUnlock()
		if !built {
			return Entry{}, ErrNotBuilt
		}
		return m.table.Best()
	}

	resolved, err := m.fam.resolve(key)
	if err != nil {
		return Entry{}, err
	}
	entry, ok := m.table.Get(resolved)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrModelNotFound, resolved)
	}
	return entry, nil
}
