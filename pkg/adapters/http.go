package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Timestamp formats understood by HTTPAdapter.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// HTTPAdapter calls a JSON endpoint and extracts parallel value and timestamp
// arrays with gjson paths, e.g. "data.#.value" and "data.#.ts".
//
// Body and header values are text/template strings with access to
// {{.WindowSeconds}}, {{.Start}}, {{.End}}, {{.Step}}, {{.StartRFC3339}},
// {{.EndRFC3339}} and every entry of TemplateVars.
type HTTPAdapter struct {
	URL             string
	Method          string
	Headers         map[string]string
	Body            string
	ValuePath       string
	TimestampPath   string
	TimestampFormat string
	StepSeconds     int
	TemplateVars    map[string]string
	HTTPClient      *http.Client
}

// Name implements Adapter.
func (h *HTTPAdapter) Name() string { return "http" }

// ValidateConfig checks the static configuration.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	switch h.TimestampFormat {
	case "", TimestampRFC3339, TimestampUnix, TimestampUnixMilli:
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("http adapter: %w", err)
	}

	step := h.StepSeconds
	if step <= 0 {
		step = 60
	}
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	vars := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		vars[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, vars)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, vars)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DataFrame{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}

	rows, err := h.extract(payload)
	if err != nil {
		return &DataFrame{}, err
	}
	return &DataFrame{Rows: rows}, nil
}

// extract pulls the value and timestamp arrays out of payload and returns
// rows sorted oldest-first.
func (h *HTTPAdapter) extract(payload []byte) ([]Row, error) {
	values := gjson.GetBytes(payload, h.ValuePath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	stamps := gjson.GetBytes(payload, h.TimestampPath)
	if !stamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	vals, tss := values.Array(), stamps.Array()
	if len(vals) != len(tss) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(vals), len(tss))
	}

	type point struct {
		ts    time.Time
		value float64
	}
	points := make([]point, len(vals))
	for i := range vals {
		ts, err := h.parseTimestamp(tss[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points[i] = point{ts: ts, value: vals[i].Float()}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].ts.Before(points[j].ts) })

	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{"ts": p.ts.UTC().Format(time.RFC3339), "value": p.value}
	}
	return rows, nil
}

func (h *HTTPAdapter) parseTimestamp(v gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", TimestampRFC3339:
		return time.Parse(time.RFC3339, v.String())
	case TimestampUnix:
		return time.Unix(int64(v.Float()), 0).UTC(), nil
	case TimestampUnixMilli:
		return time.UnixMilli(int64(v.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

func renderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
