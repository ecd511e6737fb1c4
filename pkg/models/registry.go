package models

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Families lists the names accepted by New.
var Families = []string{"arima", "autoreg", "movingavg", "trend"}

// New creates a model of the named family.
func New(family string, series []float64, opts ...Option) (Model, error) {
	switch strings.ToLower(family) {
	case "arima":
		return NewARIMA(series, opts...)
	case "autoreg", "ar":
		return NewAutoReg(series, opts...)
	case "movingavg", "ma":
		return NewMovingAvg(series, opts...)
	case "trend", "linear":
		return NewTrend(series, opts...)
	default:
		return nil, fmt.Errorf("unknown model family %q (supported: %s)", family, strings.Join(Families, ", "))
	}
}

// Registry is a caller-owned collection of named models, kept for
// introspection. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register stores m under name, replacing any previous model.
func (r *Registry) Register(name string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Get returns the model registered under name.
func (r *Registry) Get(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
