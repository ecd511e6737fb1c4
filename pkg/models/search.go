package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/lagfit/pkg/regression"
)

// SearchStats counts the outcome of a search.
type SearchStats struct {
	Submitted int `json:"submitted"`
	Fitted    int `json:"fitted"`
	Failed    int `json:"failed"`
}

// Evaluate fits a single candidate on a stationary series.
func Evaluate(spec Spec, series []float64, fitter regression.Fitter) (Result, error) {
	x, y, err := spec.Design(series)
	if err != nil {
		return Result{}, fmt.Errorf("%s: building features: %w", spec.Key(), err)
	}

	fit, err := fitter.Fit(x, y, spec.Intercept())
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", spec.Key(), err)
	}
	if math.IsNaN(fit.R2) || math.IsInf(fit.R2, 0) {
		return Result{}, fmt.Errorf("%s: %w: non-finite R2", spec.Key(), regression.ErrSingular)
	}

	return Result{
		Coefficients: fit.Coefficients,
		Intercept:    fit.Intercept,
		R2:           fit.R2,
		Score:        fit.R2 * fit.R2,
		N:            fit.N,
	}, nil
}

type outcome struct {
	index  int
	spec   Spec
	result Result
	err    error
}

// Search fits every spec on series with at most workers concurrent fits.
//
// Specs are submitted lazily as pool slots free up. Workers only send their
// outcome back; the returned entries are ordered by submission, so the result
// does not depend on completion order. Failed fits are counted and omitted.
//
// If ctx is cancelled the whole search is abandoned and no entries are
// returned.
func Search(ctx context.Context, series []float64, specs iter.Seq[Spec], fitter regression.Fitter, workers int, log *slog.Logger) ([]Entry, SearchStats, error) {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(chan outcome, workers)
	var collected []outcome
	done := make(chan struct{})
	go func() {
		defer close(done)
		for o := range results {
			collected = append(collected, o)
		}
	}()

	var stats SearchStats
	for spec := range specs {
		if gctx.Err() != nil {
			break
		}
		index := stats.Submitted
		stats.Submitted++

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := Evaluate(spec, series, fitter)
			select {
			case results <- outcome{index: index, spec: spec, result: r, err: err}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	err := g.Wait()
	close(results)
	<-done

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, stats, fmt.Errorf("search abandoned: %w", err)
	}

	slices.SortFunc(collected, func(a, b outcome) int { return a.index - b.index })

	entries := make([]Entry, 0, len(collected))
	for _, o := range collected {
		if o.err != nil {
			stats.Failed++
			log.Debug("candidate fit failed", "key", o.spec.Key(), "error", o.err)
			continue
		}
		entries = append(entries, Entry{Key: o.spec.Key(), Spec: o.spec, Result: o.result})
	}
	stats.Fitted = len(entries)

	return entries, stats, nil
}
