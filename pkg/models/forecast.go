package models

import (
	"context"
	"fmt"
	"slices"

	"github.com/HatiCode/lagfit/pkg/stationarity"
)

// forecast produces periods one-step-ahead values from entry.
//
// Algorithm:
//  1. Compute the next value from the working (stationary) series
//  2. Prepend it to the working series so the next step can use it
//  3. Undo d differences against the original-scale history and prepend the
//     result to the original-scale series
//
// Both outputs are newest-first: index 0 is t+periods.
func forecast(ctx context.Context, entry Entry, stationary, raw []float64, d, periods int) (Prediction, error) {
	if entry.Spec == nil {
		return Prediction{}, fmt.Errorf("%w: %s has no spec", ErrModelNotFound, entry.Key)
	}
	if len(raw) < d {
		return Prediction{}, fmt.Errorf("%w: %d original values for order %d", stationarity.ErrTooShort, len(raw), d)
	}

	working := slices.Clone(stationary)
	original := slices.Clone(raw)

	for range periods {
		if err := ctx.Err(); err != nil {
			return Prediction{}, err
		}

		next := entry.Spec.Next(working, entry.Result)
		level := stationarity.Integrate(next, original, d)

		working = slices.Insert(working, 0, next)
		original = slices.Insert(original, 0, level)
	}

	return Prediction{
		Key:          entry.Key,
		Periods:      PeriodLabels(periods),
		Forecast:     slices.Clone(working[:periods]),
		Reintegrated: slices.Clone(original[:periods]),
	}, nil
}

// PeriodLabels returns "t+n" ... "t+1".
func PeriodLabels(periods int) []string {
	out := make([]string, periods)
	for i := range out {
		out[i] = fmt.Sprintf("t+%d", periods-i)
	}
	return out
}
