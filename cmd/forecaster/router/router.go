// Package router configures the forecaster's HTTP API.
//
// Routes:
//   - GET /forecast/current?series=<name> - latest snapshot; snapshots older
//     than StaleAfter carry an X-Lagfit-Stale header
//   - GET /models - every built model with its best candidate
//   - GET /models/candidates?series=<name>&limit=<n> - candidates ranked by R²
//   - GET /healthz - liveness (always 200 OK)
//   - GET /readyz - readiness; pings the store when it supports it
//   - GET /metrics - Prometheus metrics
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/lagfit/pkg/httpx"
	"github.com/HatiCode/lagfit/pkg/models"
	"github.com/HatiCode/lagfit/pkg/storage"
)

const (
	defaultCandidateLimit = 10
	maxCandidateLimit     = 1000
)

// Options configures SetupRoutes.
type Options struct {
	Store      storage.Store
	Registry   *models.Registry
	StaleAfter time.Duration
	Logger     *slog.Logger
	// Gatherer serves /metrics; defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

type pinger interface {
	Ping(ctx context.Context) error
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(opts Options) *http.ServeMux {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = models.NewRegistry()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler(nil))
	mux.Handle("GET /readyz", httpx.HealthHandler(readiness(opts.Store)))
	mux.HandleFunc("GET /forecast/current", handleGetSnapshot(opts.Store, opts.StaleAfter, opts.Logger))
	mux.HandleFunc("GET /models", handleListModels(opts.Registry, opts.Logger))
	mux.HandleFunc("GET /models/candidates", handleCandidates(opts.Registry, opts.Logger))
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return mux
}

func readiness(store storage.Store) func(context.Context) error {
	p, ok := store.(pinger)
	if !ok {
		return nil
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}

func seriesParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	series := r.URL.Query().Get("series")
	if series == "" {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "series parameter required")
		return "", false
	}
	if err := storage.ValidateSeries(series); err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid series name format")
		return "", false
	}
	return series, true
}

// handleGetSnapshot returns a handler for GET /forecast/current?series=<name>.
func handleGetSnapshot(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series, ok := seriesParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := store.GetLatest(ctx, series)
		if err != nil {
			logger.Error("failed to get snapshot", "series", series, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for series %q", series))
			return
		}

		if staleAfter > 0 && time.Since(snapshot.GeneratedAt) > staleAfter {
			w.Header().Set("X-Lagfit-Stale", "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// ModelSummary describes one registered model.
type ModelSummary struct {
	Series           string  `json:"series"`
	Family           string  `json:"family"`
	IntegrationOrder int     `json:"integrationOrder"`
	Candidates       int     `json:"candidates"`
	Best             string  `json:"best,omitempty"`
	BestR2           float64 `json:"bestR2"`
}

func handleListModels(registry *models.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := registry.Names()
		out := make([]ModelSummary, 0, len(names))
		for _, name := range names {
			m, ok := registry.Get(name)
			if !ok {
				continue
			}
			summary := ModelSummary{
				Series:           name,
				Family:           m.Name(),
				IntegrationOrder: m.Order(),
				Candidates:       m.Table().Len(),
			}
			if best, err := m.Table().Best(); err == nil {
				summary.Best = best.Key
				summary.BestR2 = best.Result.R2
			}
			out = append(out, summary)
		}
		if err := httpx.WriteJSON(w, http.StatusOK, out); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleCandidates(registry *models.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series, ok := seriesParam(w, r)
		if !ok {
			return
		}
		limit, err := httpx.QueryInt(r, "limit", defaultCandidateLimit, 1, maxCandidateLimit)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		m, ok := registry.Get(series)
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no model built for series %q", series))
			return
		}

		resp := struct {
			Series     string         `json:"series"`
			Family     string         `json:"family"`
			Total      int            `json:"total"`
			Candidates []models.Entry `json:"candidates"`
		}{
			Series:     series,
			Family:     m.Name(),
			Total:      m.Table().Len(),
			Candidates: m.Table().Top(limit),
		}
		if resp.Candidates == nil {
			resp.Candidates = []models.Entry{}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
