// Package config provides configuration parsing for the forecaster.
//
// Flags take precedence over environment variables, which take precedence over
// defaults. A single series is configured with -series/-adapter and ADAPTER_*
// variables; several series are configured with a YAML file passed via
// -config-file:
//
//	series:
//	  - name: api-rps
//	    adapter: prometheus
//	    adapterConfig:
//	      query: sum(rate(http_requests_total[1m]))
//	    family: arima
//	    lags: 12
//	    window: 6h
//
// Fields omitted from a YAML entry inherit the flag/env values.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/lagfit/pkg/adapters"
	"github.com/HatiCode/lagfit/pkg/models"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	ConfigFile string

	Storage       string
	MemoryTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Series        string
	Adapter       string
	AdapterConfig map[string]string
	Step          time.Duration
	Interval      time.Duration
	Window        time.Duration
	Family        string
	Lags          int
	Factors       int
	Periods       int
	Workers       int
	Integrate     string
	TopCandidates int
}

// SeriesConfig is the resolved configuration of one forecast series.
// Integrate is "auto" (family default), "true" or "false".
type SeriesConfig struct {
	Name          string            `yaml:"name"`
	Adapter       string            `yaml:"adapter"`
	AdapterConfig map[string]string `yaml:"adapterConfig"`
	Step          time.Duration     `yaml:"step"`
	Interval      time.Duration     `yaml:"interval"`
	Window        time.Duration     `yaml:"window"`
	Family        string            `yaml:"family"`
	Lags          int               `yaml:"lags"`
	Factors       int               `yaml:"factors"`
	Periods       int               `yaml:"periods"`
	Workers       int               `yaml:"workers"`
	Integrate     string            `yaml:"integrate"`
	TopCandidates int               `yaml:"topCandidates"`
}

// IntegrateOverride returns the explicit integrate setting, or nil for the
// family default.
func (s SeriesConfig) IntegrateOverride() *bool {
	switch s.Integrate {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	default:
		return nil
	}
}

type fileConfig struct {
	Series []SeriesConfig `yaml:"series"`
}

// ParseFlags parses os.Args and the environment, exiting on error.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse parses args and the environment into a Config.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("forecaster", flag.ContinueOnError)

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":9091"), "gRPC health listen address (empty to disable)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ConfigFile, "config-file", getEnv("CONFIG_FILE", ""), "YAML file listing series (multi-series mode)")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	fs.DurationVar(&cfg.MemoryTTL, "memory-ttl", getEnvDuration("MEMORY_TTL", 0), "In-memory snapshot TTL (0 keeps snapshots forever)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis snapshot TTL")

	fs.StringVar(&cfg.Series, "series", getEnv("SERIES", ""), "Series name (required in single-series mode)")
	fs.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", ""), "Adapter type: "+strings.Join(adapters.Kinds, ", "))
	fs.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Minute), "Sampling step of the series")
	fs.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 5*time.Minute), "Build interval")
	fs.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 6*time.Hour), "Historical window collected per build")
	fs.StringVar(&cfg.Family, "family", getEnv("FAMILY", "arima"), "Model family: "+strings.Join(models.Families, ", "))
	fs.IntVar(&cfg.Lags, "lags", getEnvInt("LAGS", models.DefaultLags), "Maximum lag searched")
	fs.IntVar(&cfg.Factors, "factors", getEnvInt("FACTORS", models.DefaultFactors), "Cascade factors (autoreg, movingavg)")
	fs.IntVar(&cfg.Periods, "periods", getEnvInt("PERIODS", models.DefaultPeriods), "Forecast horizon in steps")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", 0), "Concurrent fits (0 = GOMAXPROCS)")
	fs.StringVar(&cfg.Integrate, "integrate", getEnv("INTEGRATE", "auto"), "Force stationarity: auto, true or false")
	fs.IntVar(&cfg.TopCandidates, "top", getEnvInt("TOP_CANDIDATES", 5), "Candidates kept with each snapshot")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AdapterConfig = parseAdapterConfig(os.Environ())

	if cfg.ConfigFile == "" {
		if cfg.Series == "" {
			return nil, errors.New("--series is required")
		}
		if cfg.Adapter == "" {
			return nil, errors.New("--adapter is required")
		}
	}
	if cfg.Storage != "memory" && cfg.Storage != "redis" {
		return nil, fmt.Errorf("invalid storage %q (must be memory or redis)", cfg.Storage)
	}

	return cfg, nil
}

// parseAdapterConfig turns ADAPTER_* variables into a config map, converting
// names to lower camel case (ADAPTER_VALUE_PATH becomes valuePath).
func parseAdapterConfig(environ []string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if key, found := strings.CutPrefix(name, "ADAPTER_"); found && key != "" {
			config[toLowerCamelCase(key)] = value
		}
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]) + p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var seriesNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// defaults returns the series configuration implied by flags and env.
func (c *Config) defaults() SeriesConfig {
	return SeriesConfig{
		Name:          c.Series,
		Adapter:       c.Adapter,
		AdapterConfig: c.AdapterConfig,
		Step:          c.Step,
		Interval:      c.Interval,
		Window:        c.Window,
		Family:        c.Family,
		Lags:          c.Lags,
		Factors:       c.Factors,
		Periods:       c.Periods,
		Workers:       c.Workers,
		Integrate:     c.Integrate,
		TopCandidates: c.TopCandidates,
	}
}

// LoadSeries returns the validated series configurations: the entries of
// ConfigFile when set, otherwise the single series described by flags.
func LoadSeries(cfg *Config) ([]SeriesConfig, error) {
	if cfg.ConfigFile == "" {
		s := cfg.defaults()
		if err := validateSeries(&s, 0); err != nil {
			return nil, err
		}
		return []SeriesConfig{s}, nil
	}

	data, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseSeriesFile(data, cfg.defaults())
}

// ParseSeriesFile decodes a YAML series list, filling omitted fields from
// defaults. Names must be unique.
func ParseSeriesFile(data []byte, defaults SeriesConfig) ([]SeriesConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if len(fc.Series) == 0 {
		return nil, errors.New("config file lists no series")
	}

	seen := make(map[string]bool, len(fc.Series))
	out := make([]SeriesConfig, 0, len(fc.Series))
	for i, s := range fc.Series {
		merged := merge(s, defaults)
		if err := validateSeries(&merged, i); err != nil {
			return nil, err
		}
		if seen[merged.Name] {
			return nil, fmt.Errorf("series %q: duplicate name", merged.Name)
		}
		seen[merged.Name] = true
		out = append(out, merged)
	}
	return out, nil
}

func merge(s, d SeriesConfig) SeriesConfig {
	if s.Adapter == "" {
		s.Adapter = d.Adapter
	}
	if s.AdapterConfig == nil {
		s.AdapterConfig = d.AdapterConfig
	}
	if s.Step == 0 {
		s.Step = d.Step
	}
	if s.Interval == 0 {
		s.Interval = d.Interval
	}
	if s.Window == 0 {
		s.Window = d.Window
	}
	if s.Family == "" {
		s.Family = d.Family
	}
	if s.Lags == 0 {
		s.Lags = d.Lags
	}
	if s.Factors == 0 {
		s.Factors = d.Factors
	}
	if s.Periods == 0 {
		s.Periods = d.Periods
	}
	if s.Workers == 0 {
		s.Workers = d.Workers
	}
	if s.Integrate == "" {
		s.Integrate = d.Integrate
	}
	if s.TopCandidates == 0 {
		s.TopCandidates = d.TopCandidates
	}
	return s
}

func validateSeries(s *SeriesConfig, index int) error {
	if s.Name == "" {
		return fmt.Errorf("series[%d]: name cannot be empty", index)
	}
	if !seriesNameRegex.MatchString(s.Name) {
		return fmt.Errorf("series[%d]: invalid name %q (must be alphanumeric with dash/underscore, 1-253 chars)", index, s.Name)
	}
	if !slices.Contains(adapters.Kinds, s.Adapter) {
		return fmt.Errorf("series %q: invalid adapter %q (must be one of %s)", s.Name, s.Adapter, strings.Join(adapters.Kinds, ", "))
	}
	if s.Step <= 0 {
		return fmt.Errorf("series %q: step must be > 0", s.Name)
	}
	if s.Interval <= 0 {
		s.Interval = 5 * time.Minute
	}
	if s.Window < s.Step {
		return fmt.Errorf("series %q: window (%v) must cover at least one step (%v)", s.Name, s.Window, s.Step)
	}

	s.Family = strings.ToLower(s.Family)
	if s.Family == "" {
		s.Family = "arima"
	}
	if !slices.Contains(models.Families, s.Family) {
		return fmt.Errorf("series %q: invalid family %q (must be one of %s)", s.Name, s.Family, strings.Join(models.Families, ", "))
	}

	if s.Lags < 1 {
		return fmt.Errorf("series %q: lags must be >= 1", s.Name)
	}
	if s.Family == "arima" && s.Lags < 2 {
		return fmt.Errorf("series %q: arima needs lags >= 2", s.Name)
	}
	if s.Factors < 1 {
		return fmt.Errorf("series %q: factors must be >= 1", s.Name)
	}
	if s.Periods < 1 {
		return fmt.Errorf("series %q: periods must be >= 1", s.Name)
	}
	if s.Workers < 0 {
		return fmt.Errorf("series %q: workers cannot be negative", s.Name)
	}
	if s.TopCandidates < 0 {
		return fmt.Errorf("series %q: topCandidates cannot be negative", s.Name)
	}

	switch s.Integrate {
	case "":
		s.Integrate = "auto"
	case "auto", "true", "false":
	default:
		return fmt.Errorf("series %q: integrate must be auto, true or false", s.Name)
	}

	return nil
}
