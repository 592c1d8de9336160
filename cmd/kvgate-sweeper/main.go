// kvgate-sweeper removes usage counters older than the retention window.
// Runs on a cron schedule by default; -run-once performs a single sweep
// and exits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vberkoz/kvgate/pkg/config"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/store"
	"github.com/vberkoz/kvgate/pkg/usage"
)

var (
	schedule = flag.String("schedule", "30 0 1 * *", "Cron schedule for the sweep (default: 1st of the month, 00:30 UTC)")
	runOnce  = flag.Bool("run-once", false, "Run one sweep and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("invalid configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.Store.Type == "dynamodb" {
		dynamo, err := store.NewDynamoStore(ctx, cfg.Store.Dynamo)
		if err != nil {
			logger.WithError(err).Error("store initialization failed")
			os.Exit(1)
		}
		st = dynamo
	} else {
		st = store.NewMemoryStore()
	}

	meter := usage.NewMeter(st, nil, logger, nil)

	sweep := func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		removed, err := meter.Sweep(sweepCtx, cfg.Usage.SweepKeepMonths)
		if err != nil {
			logger.WithError(err).Error("sweep failed")
			return
		}
		logger.WithField("removed", removed).Info("sweep completed")
	}

	if *runOnce {
		sweep()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, sweep); err != nil {
		logger.WithError(err).Error("invalid cron schedule")
		os.Exit(1)
	}
	c.Start()
	logger.WithField("schedule", *schedule).Info("sweeper started")

	<-ctx.Done()
	logger.Info("shutting down")
	<-c.Stop().Done()
}
