package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// PrometheusAdapter runs a range query against the Prometheus HTTP API or any
// compatible server such as VictoriaMetrics. Rows have the form
//
//	{"ts": RFC3339 string, "value": float64}
//
// When the query returns several series, values sharing a timestamp are summed.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus:9090.
	ServerURL string
	// Query is the PromQL (or MetricsQL) expression.
	Query string
	// StepSeconds is the query resolution (default 60).
	StepSeconds int
	// Flavor names the backend; defaults to "prometheus".
	Flavor string
	// HTTPClient is optional; a client with a 10s timeout is used when nil.
	HTTPClient *http.Client
}

// Name implements Adapter.
func (p *PrometheusAdapter) Name() string {
	if p.Flavor == "" {
		return "prometheus"
	}
	return p.Flavor
}

// Collect implements Adapter.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return &DataFrame{}, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	if windowSeconds <= 0 {
		return &DataFrame{}, errors.New("window must be positive")
	}
	step := p.StepSeconds
	if step <= 0 {
		step = 60
	}

	// Snap to the step grid so consecutive collects return the same samples.
	now := AlignTimestamp(time.Now().UTC(), step)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &DataFrame{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DataFrame{}, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var pr RangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return &DataFrame{}, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return &DataFrame{}, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	rows, err := SumRangeResult(pr.Data.Result)
	if err != nil {
		return &DataFrame{}, err
	}
	return &DataFrame{Rows: rows}, nil
}

// RangeResponse is the body of a query_range call.
type RangeResponse struct {
	Status string    `json:"status"`
	Data   RangeData `json:"data"`
}

// RangeData is the data member of a RangeResponse.
type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries is one labelled series. Values holds [unix_time, "value"] pairs.
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	Values [][]any           `json:"values"`
}

// SumRangeResult merges series by summing values at equal timestamps and
// returns rows sorted oldest-first.
func SumRangeResult(series []RangeSeries) ([]Row, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			ts, err := toFloat(pair[0])
			if err != nil {
				return nil, fmt.Errorf("timestamp: %w", err)
			}
			v, err := toFloat(pair[1])
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			acc[int64(ts)] += v
		}
	}

	stamps := make([]int64, 0, len(acc))
	for ts := range acc {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	rows := make([]Row, len(stamps))
	for i, ts := range stamps {
		rows[i] = Row{
			"ts":    time.Unix(ts, 0).UTC().Format(time.RFC3339),
			"value": acc[ts],
		}
	}
	return rows, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	case json.Number:
		return x.Float64()
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
