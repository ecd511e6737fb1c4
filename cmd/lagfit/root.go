package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HatiCode/lagfit/pkg/adapters"
	"github.com/HatiCode/lagfit/pkg/models"
)

// runOptions holds the flags shared by every family subcommand.
type runOptions struct {
	file            string
	column          string
	timestampColumn string
	oldestFirst     bool

	lags      int
	factors   int
	periods   int
	workers   int
	model     string
	integrate string
	top       int

	json     bool
	logLevel string
}

// Output is the result of one run, printed as JSON with --json.
type Output struct {
	Family           string             `json:"family"`
	Points           int                `json:"points"`
	IntegrationOrder int                `json:"integrationOrder"`
	Stats            models.SearchStats `json:"stats"`
	Best             models.Entry       `json:"best"`
	Prediction       models.Prediction  `json:"prediction"`
	Top              []models.Entry     `json:"top,omitempty"`
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:           "lagfit",
		Short:         "Brute-force lag-model search and forecasting",
		Long:          "lagfit fits every candidate lag structure of a model family to a series,\nkeeps the one with the highest R² and forecasts with it.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.file, "file", "f", "", "CSV file with a header row (required)")
	pf.StringVarP(&opts.column, "column", "c", "", "value column (default: first non-timestamp column)")
	pf.StringVar(&opts.timestampColumn, "timestamp-column", "", "timestamp column, ignored when picking the value column")
	pf.BoolVar(&opts.oldestFirst, "oldest-first", true, "rows in the file are ordered oldest-first")
	pf.IntVar(&opts.lags, "lags", models.DefaultLags, "maximum lag searched")
	pf.IntVar(&opts.factors, "factors", models.DefaultFactors, "factors per candidate (autoreg, movingavg)")
	pf.IntVarP(&opts.periods, "periods", "p", models.DefaultPeriods, "forecast horizon in steps")
	pf.IntVarP(&opts.workers, "workers", "w", 0, "concurrent fits (0 = GOMAXPROCS)")
	pf.StringVarP(&opts.model, "model", "m", models.BestKey, `candidate key to forecast with, or "best"`)
	pf.StringVar(&opts.integrate, "integrate", "auto", "force stationarity: auto, true or false")
	pf.IntVar(&opts.top, "top", 5, "ranked candidates to print (0 for none)")
	pf.BoolVar(&opts.json, "json", false, "print JSON")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	for _, fam := range []struct {
		name, short string
	}{
		{"arima", "Pair one AR lag with one moving-average window (AR<p>I<d>MA<q>)"},
		{"autoreg", "Cascade of lagged values (AR1AR2...)"},
		{"movingavg", "Cascade of trailing means (MA2MA3...)"},
		{"trend", "Linear projection on the time index"},
	} {
		root.AddCommand(&cobra.Command{
			Use:   fam.name,
			Short: fam.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := run(cmd, fam.name, opts, stderr)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), out, opts)
			},
		})
	}

	return root
}

func run(cmd *cobra.Command, family string, opts *runOptions, stderr io.Writer) (Output, error) {
	if opts.file == "" {
		return Output{}, fmt.Errorf("--file is required")
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return Output{}, err
	}
	defer f.Close()

	csv := &adapters.CSVAdapter{
		Column:          opts.column,
		TimestampColumn: opts.timestampColumn,
		NewestFirst:     !opts.oldestFirst,
	}
	df, err := csv.Read(cmd.Context(), f)
	if err != nil {
		return Output{}, err
	}
	series, err := df.Series()
	if err != nil {
		return Output{}, err
	}

	modelOpts := []models.Option{
		models.WithLags(opts.lags),
		models.WithFactors(opts.factors),
		models.WithWorkers(opts.workers),
		models.WithLogger(newLogger(stderr, opts.logLevel)),
	}
	switch opts.integrate {
	case "auto":
	case "true", "false":
		modelOpts = append(modelOpts, models.WithIntegrate(opts.integrate == "true"))
	default:
		return Output{}, fmt.Errorf("--integrate must be auto, true or false")
	}

	model, err := models.New(family, series, modelOpts...)
	if err != nil {
		return Output{}, err
	}

	report, err := model.Build(cmd.Context())
	if err != nil {
		return Output{}, fmt.Errorf("build: %w", err)
	}

	pred, err := model.Predict(cmd.Context(), opts.model, opts.periods)
	if err != nil {
		return Output{}, fmt.Errorf("predict: %w", err)
	}

	out := Output{
		Family:           model.Name(),
		Points:           len(series),
		IntegrationOrder: model.Order(),
		Stats:            report.Stats,
		Best:             report.Best,
		Prediction:       pred,
	}
	if opts.top > 0 {
		out.Top = model.Table().Top(opts.top)
	}
	return out, nil
}

func render(w io.Writer, out Output, opts *runOptions) error {
	if opts.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "family:       %s\n", out.Family)
	fmt.Fprintf(w, "points:       %d\n", out.Points)
	fmt.Fprintf(w, "integration:  d=%d\n", out.IntegrationOrder)
	fmt.Fprintf(w, "candidates:   %d fitted, %d failed\n", out.Stats.Fitted, out.Stats.Failed)
	fmt.Fprintf(w, "best:         %s (R²=%.4f)\n", out.Best.Key, out.Best.Result.R2)
	if out.Prediction.Key != out.Best.Key {
		fmt.Fprintf(w, "forecast by:  %s\n", out.Prediction.Key)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(out.Top) > 0 {
		fmt.Fprintln(tw, "\nRANK\tKEY\tR²\tINTERCEPT\tCOEFFICIENTS")
		for i, e := range out.Top {
			fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%s\n", i+1, e.Key, e.Result.R2, e.Result.Intercept, formatFloats(e.Result.Coefficients))
		}
	}

	fmt.Fprintln(tw, "\nPERIOD\tFORECAST\tREINTEGRATED")
	// Print t+1 first.
	p := out.Prediction
	for i := len(p.Periods) - 1; i >= 0; i-- {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", p.Periods[i], p.Forecast[i], p.Reintegrated[i])
	}
	return tw.Flush()
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return strings.Join(parts, " ")
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
