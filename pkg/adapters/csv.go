package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// CSVAdapter reads one numeric column from a CSV file with a header row.
//
// Rows are assumed oldest-first unless NewestFirst is set. When StepSeconds
// and the collection window are both positive, only the last
// windowSeconds/StepSeconds rows are returned.
type CSVAdapter struct {
	Path            string
	Column          string
	TimestampColumn string
	NewestFirst     bool
	StepSeconds     int
}

// Name implements Adapter.
func (c *CSVAdapter) Name() string { return "csv" }

// Collect implements Adapter.
func (c *CSVAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if c.Path == "" {
		return &DataFrame{}, errors.New("csv adapter: path is required")
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("csv adapter: %w", err)
	}
	defer f.Close()

	df, err := c.Read(ctx, f)
	if err != nil {
		return &DataFrame{}, err
	}

	if windowSeconds > 0 && c.StepSeconds > 0 {
		keep := windowSeconds / c.StepSeconds
		if keep > 0 && keep < len(df.Rows) {
			df.Rows = df.Rows[len(df.Rows)-keep:]
		}
	}
	return df, nil
}

// Read parses CSV from r into an oldest-first DataFrame.
func (c *CSVAdapter) Read(ctx context.Context, r io.Reader) (*DataFrame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv adapter: reading header: %w", err)
	}

	valueIdx, tsIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(name)
		if c.Column == "" && valueIdx < 0 && name != c.TimestampColumn {
			valueIdx = i
		}
		if name == c.Column {
			valueIdx = i
		}
		if c.TimestampColumn != "" && name == c.TimestampColumn {
			tsIdx = i
		}
	}
	if valueIdx < 0 {
		return nil, fmt.Errorf("csv adapter: column %q not found", c.Column)
	}
	if c.TimestampColumn != "" && tsIdx < 0 {
		return nil, fmt.Errorf("csv adapter: timestamp column %q not found", c.TimestampColumn)
	}

	var rows []Row
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv adapter: line %d: %w", line, err)
		}

		field := strings.TrimSpace(record[valueIdx])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("csv adapter: line %d: %w", line, err)
		}

		row := Row{"value": v}
		if tsIdx >= 0 {
			row["ts"] = strings.TrimSpace(record[tsIdx])
		}
		rows = append(rows, row)
	}

	if c.NewestFirst {
		slices.Reverse(rows)
	}
	return &DataFrame{Rows: rows}, nil
}
