// Command lagfit runs a one-off lag-model search over a CSV column and prints
// the best candidate and its forecast.
//
// Usage:
//
//	lagfit arima --file data.csv --column value --lags 10 --periods 12
//	lagfit autoreg --file data.csv --factors 2 --json
//	lagfit movingavg --file data.csv --model MA2MA5
//	lagfit trend --file data.csv --oldest-first=false
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
