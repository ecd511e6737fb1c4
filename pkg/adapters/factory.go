package adapters

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kinds lists the adapter kinds accepted by New.
var Kinds = []string{"prometheus", "victoriametrics", "http", "csv"}

// New creates an adapter from a kind and a flat string configuration, as read
// from ADAPTER_* environment variables or a config file.
//
// Required keys:
//   - prometheus, victoriametrics: query (url defaults to :9090 / :8428)
//   - http: url, valuePath, timestampPath
//   - csv: path
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case "prometheus":
		return newPromCompatible("prometheus", "http://localhost:9090", config, stepSeconds)
	case "victoriametrics":
		return newPromCompatible("victoriametrics", "http://localhost:8428", config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	case "csv":
		return newCSV(config, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, http, or csv)", kind)
	}
}

func newPromCompatible(flavor, defaultURL string, config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", flavor)
	}
	url := config["url"]
	if url == "" {
		url = defaultURL
	}
	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		Flavor:      flavor,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepSeconds,
	}
	if a.URL == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}
	if a.ValuePath == "" || a.TimestampPath == "" {
		return nil, fmt.Errorf("http adapter requires 'valuePath' and 'timestampPath' config")
	}
	if a.Method == "" {
		a.Method = "GET"
	}
	if a.TimestampFormat == "" {
		a.TimestampFormat = TimestampRFC3339
	}

	if raw := config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if raw := config["templateVars"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func newCSV(config map[string]string, stepSeconds int) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv adapter requires 'path' config")
	}

	newestFirst := false
	if raw := config["newestFirst"]; raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid 'newestFirst': %w", err)
		}
		newestFirst = v
	}

	return &CSVAdapter{
		Path:            path,
		Column:          config["column"],
		TimestampColumn: config["timestampColumn"],
		NewestFirst:     newestFirst,
		StepSeconds:     stepSeconds,
	}, nil
}
