// Package storage persists forecast snapshots, one latest snapshot per series.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Candidate is one fitted candidate kept with a snapshot.
type Candidate struct {
	Key          string    `json:"key"`
	R2           float64   `json:"r2"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Snapshot is the outcome of one build-and-predict cycle for a series.
// Forecast and Reintegrated are newest-first, matching Periods.
type Snapshot struct {
	Series           string    `json:"series"`
	Family           string    `json:"family"`
	Key              string    `json:"key"`
	RunID            string    `json:"runId"`
	GeneratedAt      time.Time `json:"generatedAt"`
	StepSeconds      int       `json:"stepSeconds"`
	IntegrationOrder int       `json:"integrationOrder"`
	R2               float64   `json:"r2"`
	Candidates       int       `json:"candidates"`
	Failures         int       `json:"failures"`
	Periods          []string  `json:"periods"`
	Forecast         []float64 `json:"forecast"`
	Reintegrated     []float64 `json:"reintegrated"`

	// Top holds the highest ranked candidates, best first.
	Top []Candidate `json:"top,omitempty"`
}

// Store keeps the latest snapshot per series.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, series string) (Snapshot, bool, error)
}

// ErrInvalidSeries is returned for an empty or malformed series name.
var ErrInvalidSeries = errors.New("storage: invalid series name")

var seriesNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSeries checks that name is usable as a storage key.
func ValidateSeries(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSeries)
	}
	if !seriesNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q: only alphanumeric, hyphens, and underscores allowed", ErrInvalidSeries, name)
	}
	return nil
}
