// Package main provides the nightly attribution batch runner.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/hotdash/actionqueue/pkg/attribution"
	"github.com/hotdash/actionqueue/pkg/cmd"
	"github.com/hotdash/actionqueue/pkg/log"
	"github.com/hotdash/actionqueue/pkg/otelhelper"
)

const defaultAnalyticsQPS = 1.0

func main() {
	logger := log.WithModule("attributor")

	command := &cli.Command{
		Name:                  "actionqueue-attributor",
		Usage:                 "Refresh realized ROI for applied actions from conversion analytics",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or file://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "analytics-url",
				Usage:    "Base URL of the conversion analytics service",
				Required: true,
				Sources:  cli.EnvVars("ANALYTICS_URL"),
			},
			&cli.FloatFlag{
				Name:    "analytics-qps",
				Usage:   "Rate limit for analytics queries, in requests per second",
				Value:   defaultAnalyticsQPS,
				Sources: cli.EnvVars("ANALYTICS_QPS"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for the nightly batch",
				Value:   "0 3 * * *",
				Sources: cli.EnvVars("ATTRIBUTION_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single batch and exit instead of scheduling",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing attribution batch runner")

			tracer, err := otelhelper.NewTracer(ctx, "actionqueue-attributor")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "actionqueue-attributor", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			reranker := attribution.NewReranker(
				persistence,
				attribution.NewHTTPClient(command.String("analytics-url")),
				attribution.NewRateLimiter(command.Float("analytics-qps")),
				nil,
				eventBus,
				logger,
			)
			batch := attribution.NewBatch(persistence, reranker, tracer, logger)

			if command.Bool("once") {
				return batch.RunOnce(ctx)
			}

			return runScheduled(ctx, logger, batch, command.String("schedule"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func runScheduled(ctx context.Context, logger *slog.Logger, batch *attribution.Batch, schedule string) error {
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := scheduler.AddFunc(schedule, func() {
		if err := batch.RunOnce(ctx); err != nil {
			logger.ErrorContext(ctx, "Attribution batch failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	scheduler.Start()
	logger.InfoContext(ctx, "Attribution batch scheduled", "schedule", schedule)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-stop:
	}

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	return nil
}
