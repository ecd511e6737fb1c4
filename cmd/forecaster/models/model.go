// Package models builds the lag model configured for a forecaster series.
package models

import (
	"log/slog"

	"github.com/HatiCode/lagfit/cmd/forecaster/config"
	"github.com/HatiCode/lagfit/pkg/models"
)

// Options translates a series configuration into model options.
func Options(sc config.SeriesConfig, logger *slog.Logger) []models.Option {
	opts := []models.Option{
		models.WithLags(sc.Lags),
		models.WithFactors(sc.Factors),
		models.WithWorkers(sc.Workers),
		models.WithLogger(logger.With("series", sc.Name)),
	}
	if integrate := sc.IntegrateOverride(); integrate != nil {
		opts = append(opts, models.WithIntegrate(*integrate))
	}
	return opts
}

// New creates the configured model family over series (newest-first).
func New(sc config.SeriesConfig, series []float64, logger *slog.Logger) (models.Model, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("initializing model",
		"series", sc.Name,
		"family", sc.Family,
		"lags", sc.Lags,
		"factors", sc.Factors,
		"integrate", sc.Integrate,
		"points", len(series),
	)
	return models.New(sc.Family, series, Options(sc, logger)...)
}
