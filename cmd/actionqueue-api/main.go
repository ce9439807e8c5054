package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/hotdash/actionqueue/pkg/attribution"
	"github.com/hotdash/actionqueue/pkg/cmd"
	"github.com/hotdash/actionqueue/pkg/executor"
	"github.com/hotdash/actionqueue/pkg/log"
)

const (
	defaultPort         = 9094
	defaultAnalyticsQPS = 1.0
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "actionqueue-api",
		Usage:                 "Review and apply agent-proposed merchant actions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
				Name:    "redis-url",
				Usage:   "Redis URL for the ranking cache (in-memory cache when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "executor-base-url",
				Usage:    "Base URL of the Shopify admin executor",
				Required: true,
				Sources:  cli.EnvVars("EXECUTOR_BASE_URL"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Action Queue API")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "actionqueue-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			rankCache, err := cmd.NewCache(ctx, command.String("redis-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := rankCache.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close cache", "error", err)
				}
			}()

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				rankCache,
				executor.NewHTTPExecutor(command.String("executor-base-url"), logger),
				attribution.NewHTTPClient(command.String("analytics-url")),
				attribution.NewRateLimiter(command.Float("analytics-qps")),
			)

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
