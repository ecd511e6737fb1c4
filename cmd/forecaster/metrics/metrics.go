// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed (all labelled by series):
//   - lagfit_adapter_collect_seconds: histogram of collection duration
//   - lagfit_model_search_seconds: histogram of candidate search duration
//   - lagfit_model_predict_seconds: histogram of forecast duration
//   - lagfit_candidates_total: counter of fitted and failed candidates
//   - lagfit_best_r2: gauge of the selected candidate's R²
//   - lagfit_integration_order: gauge of the differencing order applied
//   - lagfit_predicted_value: gauge of the next re-integrated value (t+1)
//   - lagfit_last_build_timestamp_seconds: gauge of the last successful build
//   - lagfit_errors_total: counter of errors by component and reason
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the forecaster's collectors.
type Metrics struct {
	AdapterCollectSeconds *prometheus.HistogramVec
	ModelSearchSeconds    *prometheus.HistogramVec
	ModelPredictSeconds   *prometheus.HistogramVec
	CandidatesTotal       *prometheus.CounterVec
	BestR2                *prometheus.GaugeVec
	IntegrationOrder      *prometheus.GaugeVec
	PredictedValue        *prometheus.GaugeVec
	LastBuildTimestamp    *prometheus.GaugeVec
	ErrorsTotal           *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AdapterCollectSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagfit_adapter_collect_seconds",
			Help:    "Time spent collecting the series from its adapter",
			Buckets: prometheus.DefBuckets,
		}, []string{"series", "adapter"}),

		ModelSearchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagfit_model_search_seconds",
			Help:    "Time spent fitting every candidate lag structure",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"series", "family"}),

		ModelPredictSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagfit_model_predict_seconds",
			Help:    "Time spent producing the forecast",
			Buckets: prometheus.DefBuckets,
		}, []string{"series"}),

		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagfit_candidates_total",
			Help: "Candidates evaluated by outcome (fitted, failed)",
		}, []string{"series", "outcome"}),

		BestR2: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagfit_best_r2",
			Help: "R² of the selected candidate",
		}, []string{"series"}),

		IntegrationOrder: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagfit_integration_order",
			Help: "Differencing order applied before the search",
		}, []string{"series"}),

		PredictedValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagfit_predicted_value",
			Help: "Next re-integrated forecast value (t+1)",
		}, []string{"series"}),

		LastBuildTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagfit_last_build_timestamp_seconds",
			Help: "Unix time of the last successful build",
		}, []string{"series"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagfit_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"series", "component", "reason"}),
	}
}

// RecordCollect records the time spent collecting a series.
func (m *Metrics) RecordCollect(series, adapter string, d time.Duration) {
	m.AdapterCollectSeconds.WithLabelValues(series, adapter).Observe(d.Seconds())
}

// RecordSearch records a completed candidate search.
func (m *Metrics) RecordSearch(series, family string, d time.Duration, fitted, failed int) {
	m.ModelSearchSeconds.WithLabelValues(series, family).Observe(d.Seconds())
	m.CandidatesTotal.WithLabelValues(series, "fitted").Add(float64(fitted))
	m.CandidatesTotal.WithLabelValues(series, "failed").Add(float64(failed))
}

// RecordPredict records the time spent forecasting.
func (m *Metrics) RecordPredict(series string, d time.Duration) {
	m.ModelPredictSeconds.WithLabelValues(series).Observe(d.Seconds())
}

// SetBest publishes the outcome of a build.
func (m *Metrics) SetBest(series string, r2 float64, order int, next float64, at time.Time) {
	m.BestR2.WithLabelValues(series).Set(r2)
	m.IntegrationOrder.WithLabelValues(series).Set(float64(order))
	m.PredictedValue.WithLabelValues(series).Set(next)
	m.LastBuildTimestamp.WithLabelValues(series).Set(float64(at.Unix()))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(series, component, reason string) {
	m.ErrorsTotal.WithLabelValues(series, component, reason).Inc()
}
