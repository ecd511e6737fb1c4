// Package adapters pulls raw time series from external systems and
// normalises them into a DataFrame that the model search can consume.
//
// Available adapters:
//   - PrometheusAdapter: /api/v1/query_range on Prometheus or VictoriaMetrics
//   - HTTPAdapter: any JSON API, values extracted with gjson paths
//   - CSVAdapter: a column of a local CSV file
//
// Adapters return rows oldest-first; DataFrame.Series flips them into the
// newest-first order used by the models.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Row is one observation, normally {"ts": RFC3339 string, "value": float64}.
type Row map[string]any

// DataFrame holds rows ordered oldest-first.
type DataFrame struct {
	Rows []Row
}

// ErrNoData is returned by Series when the frame has no usable rows.
var ErrNoData = errors.New("adapters: no data")

// Series returns the "value" column newest-first.
func (df *DataFrame) Series() ([]float64, error) {
	return df.Column("value")
}

// Column returns a numeric column newest-first.
func (df *DataFrame) Column(name string) ([]float64, error) {
	if df == nil || len(df.Rows) == 0 {
		return nil, ErrNoData
	}

	out := make([]float64, len(df.Rows))
	for i, row := range df.Rows {
		raw, ok := row[name]
		if !ok {
			return nil, fmt.Errorf("row %d missing %q field", i, name)
		}
		var v float64
		switch x := raw.(type) {
		case float64:
			v = x
		case float32:
			v = float64(x)
		case int:
			v = float64(x)
		case int64:
			v = float64(x)
		default:
			return nil, fmt.Errorf("row %d: %q has type %T, want number", i, name, raw)
		}
		out[len(df.Rows)-1-i] = v
	}
	return out, nil
}

// Adapter fetches a window of observations from a data source.
type Adapter interface {
	// Collect fetches the last windowSeconds of data. It must respect ctx
	// and never panic.
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier, e.g. "prometheus".
	Name() string
}

// AlignTimestamp truncates ts to a multiple of stepSec.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}
